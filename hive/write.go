package hive

import "reflect"

// Write carries one (channelID, value) pair produced by a node or external
// caller. Type validity against the channel's declared type is checked at
// commit time.
type Write struct {
	Channel ChannelID
	Value any
}

func valueTypeIDOf(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
