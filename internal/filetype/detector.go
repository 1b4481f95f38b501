package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind groups MIME types by how the summarizer can consume them.
type Kind string

const (
	KindText        Kind = "text"
	KindPDF         Kind = "pdf"
	KindImage       Kind = "image"
	KindOffice      Kind = "office"
	KindUnsupported Kind = "unsupported"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// IsText reports whether the content can be sent to a model as UTF-8 text.
func (i *FileTypeInfo) IsText() bool { return i.Kind == KindText }

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the type of the file at filePath from its magic bytes.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	return d.build(mtype, filePath), nil
}

// DetectBytes detects the type of an in-memory upload. name is only used to
// disambiguate container formats such as zip based office documents.
func (d *Detector) DetectBytes(data []byte, name string) *FileTypeInfo {
	return d.build(mimetype.Detect(data), name)
}

func (d *Detector) build(mtype *mimetype.MIME, name string) *FileTypeInfo {
	mimeType := mtype.String()
	extension := mtype.Extension()
	ext := strings.ToLower(filepath.Ext(name))

	// zip and OLE containers carry office documents; the extension tells which
	if mtype.Is("application/zip") || mtype.Is("application/x-ole-storage") {
		if override, ok := officeByExt[ext]; ok {
			log.Debug().Str("original", mimeType).Str("override", override).Msg("overriding container detection based on extension")
			mimeType, extension = override, ext
		}
	}

	info := &FileTypeInfo{MIMEType: mimeType, Extension: extension}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("kind", string(info.Kind)).Str("file", name).Msg("detected file type")
	return info
}

var officeByExt = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".doc":  "application/msword",
	".xls":  "application/vnd.ms-excel",
	".ppt":  "application/vnd.ms-powerpoint",
}

// classify determines how a file can be summarized
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := strings.SplitN(info.MIMEType, ";", 2)[0]

	switch {
	case strings.HasPrefix(mimeType, "text/"),
		mimeType == "application/json",
		mimeType == "application/xml":
		info.Kind = KindText
		info.Description = "Text document"

	case mimeType == "application/pdf":
		info.Kind = KindPDF
		info.Description = "PDF document"

	case strings.HasPrefix(mimeType, "image/"):
		info.Kind = KindImage
		info.Description = "Image file"

	case strings.HasPrefix(mimeType, "application/vnd.openxmlformats-officedocument."),
		strings.HasPrefix(mimeType, "application/vnd.oasis.opendocument."),
		mimeType == "application/msword",
		mimeType == "application/vnd.ms-excel",
		mimeType == "application/vnd.ms-powerpoint",
		mimeType == "application/rtf":
		info.Kind = KindOffice
		info.Description = "Office document"

	default:
		info.Kind = KindUnsupported
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}

// ContentType returns the Content-Type to serve filePath with. Common image
// extensions are answered without reading the file.
func (d *Detector) ContentType(filePath string) (string, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".webp":
		return "image/webp", nil
	case ".png":
		return "image/png", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	}
	info, err := d.Detect(filePath)
	if err != nil {
		return "", err
	}
	return info.MIMEType, nil
}
