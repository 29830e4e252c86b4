package project

import (
	"encoding/json"
	"fmt"
)

// Document is the full state of one project. Image fields hold references,
// never inline bytes, while stored.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"userId,omitempty"`
	// Version increases by one on every successful save.
	Version int64 `json:"version"`
	Data    *Data `json:"data"`
}

// Data is the nested payload of a project. Fields this service does not
// interpret are kept in Extra and written back unchanged.
type Data struct {
	Report             json.RawMessage `json:"report,omitempty"`
	Style              json.RawMessage `json:"style,omitempty"`
	Typography         json.RawMessage `json:"typography,omitempty"`
	Requirements       map[string]bool `json:"requirements,omitempty"`
	CustomRequirements string          `json:"customRequirements,omitempty"`
	AspectRatio        string          `json:"aspectRatio,omitempty"`
	Images             []string        `json:"images"`
	GeneratedImages    map[int]string  `json:"generatedImages"`

	Extra map[string]json.RawMessage `json:"-"`
}

type Metadata struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	BrandName string `json:"brandName,omitempty"`
	Version   int64  `json:"version"`
}

type dataFields Data

var knownDataFields = []string{
	"report", "style", "typography", "requirements",
	"customRequirements", "aspectRatio", "images", "generatedImages",
}

func (d *Data) UnmarshalJSON(b []byte) error {
	var fields dataFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, name := range knownDataFields {
		delete(all, name)
	}
	if len(all) > 0 {
		fields.Extra = all
	}

	*d = Data(fields)
	return nil
}

func (d Data) MarshalJSON() ([]byte, error) {
	fields := dataFields(d)
	if fields.Images == nil {
		fields.Images = []string{}
	}
	if fields.GeneratedImages == nil {
		fields.GeneratedImages = map[int]string{}
	}

	b, err := json.Marshal(fields)
	if err != nil || len(d.Extra) == 0 {
		return b, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for name, value := range d.Extra {
		if _, known := all[name]; !known {
			all[name] = value
		}
	}
	return json.Marshal(all)
}

// Clone returns a deep copy of the image fields so callers can splice content
// without touching the stored document.
func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	c := *d
	c.Images = append([]string(nil), d.Images...)
	c.GeneratedImages = make(map[int]string, len(d.GeneratedImages))
	for i, ref := range d.GeneratedImages {
		c.GeneratedImages[i] = ref
	}
	return &c
}

// BrandName reads report.brandName, or "" when the report carries none.
func (d *Data) BrandName() string {
	if d == nil || len(d.Report) == 0 {
		return ""
	}
	var report struct {
		BrandName string `json:"brandName"`
	}
	if err := json.Unmarshal(d.Report, &report); err != nil {
		return ""
	}
	return report.BrandName
}

// Metadata derives the index record of doc.
func (doc *Document) Metadata(userName string) Metadata {
	return Metadata{
		ID:        doc.ID,
		Name:      doc.Name,
		Timestamp: doc.Timestamp,
		UserID:    doc.UserID,
		UserName:  userName,
		BrandName: doc.Data.BrandName(),
		Version:   doc.Version,
	}
}

func (doc *Document) String() string {
	return fmt.Sprintf("project %s (v%d)", doc.ID, doc.Version)
}
