// Package callbacks decodes inline button callback data.
package callbacks

import "strings"

// Sep separates the routing key from the payload, as in "1st|en".
const Sep = "|"

// Parse splits callback data into its key and payload. The "\f" marker telebot
// adds for buttons with a unique id is dropped. A missing separator yields an
// empty payload.
func Parse(data string) (key, payload string) {
	data = strings.TrimPrefix(data, "\f")
	key, payload, _ = strings.Cut(data, Sep)
	return strings.TrimSpace(key), strings.TrimSpace(payload)
}

// Build joins key and payload the way Parse expects.
func Build(key, payload string) string {
	return key + Sep + payload
}
