// Package logic contains the pure state machines of the fridge controller:
// door alarm, weight change detection, temperature classification, input
// debouncing and the host time sync handshake.
// This package has NO external dependencies (no GPIO, serial, MQTT or OS).
// Time is always injected as a Millis value.
package logic
