package leafprefs

import (
	"fmt"
	"strings"
)

// Well-known channels of the preference protocol.
const (
	// ValueRequestChannel carries brokered value requests, payload "<id>::<container>".
	ValueRequestChannel = "maple.valueRequest"
	// ValueResponsePrefix prefixes the per-request response channel.
	ValueResponsePrefix = "maple.valueRequestResponse"
	// LogChannel carries leaf log lines, payload "<bundle>+++<message>".
	LogChannel = "maple.log"

	requestSeparator  = "::"
	responseSeparator = "++"
	logSeparator      = "+++"
)

// RequestKey identifies a pending brokered request: "<id>++<container>".
func RequestKey(id, container string) string {
	return id + responseSeparator + container
}

// RequestPayload is the payload published on ValueRequestChannel.
func RequestPayload(id, container string) string {
	return id + requestSeparator + container
}

// ParseRequestPayload splits a value request payload into id and container.
func ParseRequestPayload(payload string) (id, container string, err error) {
	id, container, ok := strings.Cut(payload, requestSeparator)
	if !ok || id == "" || container == "" {
		return "", "", fmt.Errorf("%w: value request %q", ErrInvalidPayload, payload)
	}
	return id, container, nil
}

// ResponseChannel is the channel a host answers a request for id in container on.
func ResponseChannel(id, container string) string {
	return ValueResponsePrefix + responseSeparator + RequestKey(id, container)
}

// LogPayload is the payload published on LogChannel.
func LogPayload(bundle, message string) string {
	return bundle + logSeparator + message
}

// ParseLogPayload splits a log payload into bundle and message.
func ParseLogPayload(payload string) (bundle, message string, err error) {
	bundle, message, ok := strings.Cut(payload, logSeparator)
	if !ok {
		return "", "", fmt.Errorf("%w: log line %q", ErrInvalidPayload, payload)
	}
	return bundle, message, nil
}
