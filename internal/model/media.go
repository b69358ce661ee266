package model

// Media is a reference to an uploaded file in the CMS media library.
type Media struct {
	ID   int64  `mapstructure:"id" json:"id"`
	Name string `mapstructure:"name" json:"name,omitempty"`
	MIME string `mapstructure:"mime" json:"mime,omitempty"`

	// URL is absolute or relative to the CMS origin.
	URL string `mapstructure:"url" json:"url,omitempty"`

	// PreviewURL is the thumbnail (GIF for videos) when the CMS generated one.
	PreviewURL string `mapstructure:"previewUrl" json:"previewUrl,omitempty"`
}
