package fc2

import "encoding/json"

// Meta is the channel metadata snapshot returned by the member API.
// It is fetched once per recording session and treated as immutable except
// for an explicit refresh.
type Meta struct {
	ChannelData ChannelData `json:"channel_data"`
	ProfileData ProfileData `json:"profile_data"`

	// Raw is the original data object, kept verbatim so the info JSON
	// written to disk matches what the server sent.
	Raw json.RawMessage `json:"-"`
}

// ChannelData carries the broadcast-specific fields of the metadata.
type ChannelData struct {
	ChannelID string `json:"channelid"`
	Title     string `json:"title"`
	IsPublish int    `json:"is_publish"`
	Version   string `json:"version"`
	Image     string `json:"image"`
}

// ProfileData carries the broadcaster profile fields of the metadata.
type ProfileData struct {
	Name string `json:"name"`
}

// IsOnline reports whether the snapshot says the channel is broadcasting.
func (m *Meta) IsOnline() bool {
	return m.ChannelData.IsPublish > 0
}
