// Package leafprefs lets independently running plugin processes ("leaves") declare
// typed preferences, persist their values to a per-container store and stay in sync
// with a host process and with each other through a broadcast bus.
//
// Values travel as single-string tokens (see Value.Encode and Decode). Storage and
// transport are injected: any Storage backend (see the storage package) and any Bus
// (see the bus package) can be combined through a Manager.
package leafprefs
