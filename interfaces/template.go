package interfaces

// TemplateRecord is a registered, owner-less POD template.
type TemplateRecord struct {
	// Entries never contain an owner entry.
	Entries Entries `json:"podEntries"`

	// SignerKey is an encoded private key seed overriding the server
	// default. Empty means the default key.
	SignerKey string `json:"signerPrivateKey,omitempty"`

	// Folder is the display folder hint for the companion app.
	Folder string `json:"podFolder"`

	// MintLink is the long redemption link, built at registration.
	MintLink string `json:"mintLink"`

	// Nullifiers holds consumed nullifier hashes (decimal) for circuit proof redemptions.
	Nullifiers map[string]bool `json:"nullifiers,omitempty"`
}

// Clone returns a deep copy of the record.
func (r TemplateRecord) Clone() TemplateRecord {
	out := r
	out.Entries = r.Entries.Clone()
	if r.Nullifiers != nil {
		out.Nullifiers = make(map[string]bool, len(r.Nullifiers))
		for k, v := range r.Nullifiers {
			out.Nullifiers[k] = v
		}
	}
	return out
}

// DisplayInfo returns the title and description entries.
func (r TemplateRecord) DisplayInfo() (name, description string, err error) {
	name, okName := r.Entries.StringValue(TitleEntry)
	description, okDesc := r.Entries.StringValue(DescriptionEntry)
	if !okName || !okDesc {
		return "", "", ErrMissingDisplayEntries
	}
	return name, description, nil
}
