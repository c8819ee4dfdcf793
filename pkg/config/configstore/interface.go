package configstore

// ConfigStore decodes a stored document into out.
type ConfigStore interface {
	Load(out any) error
}
