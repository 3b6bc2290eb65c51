package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// MaxAttachmentSize caps attachments at 5MiB, matching the upload limit of the web UI.
const MaxAttachmentSize = 5 * 1024 * 1024

// Attachment is a single artifact attached to a mentor exchange. Exactly one of
// Text or Data is set: code and plain-text files are carried as a transcript
// merged into the user's message, images travel as inline binary.
type Attachment struct {
	Name     string
	MimeType string
	// Text transcript for text/code files.
	Text string
	// Raw bytes for images.
	Data []byte
}

// IsText returns true if the attachment is a text transcript.
func (a *Attachment) IsText() bool {
	return a.Data == nil
}

// Transcript returns the text attachment formatted for injection into a user
// message: a header naming the file followed by a fenced block of its content.
func (a *Attachment) Transcript() string {
	return fmt.Sprintf("\n\n[Analyzing file: %s]\n```\n%s\n```", a.Name, a.Text)
}

var imageMimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

var textExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".js": {}, ".ts": {}, ".tsx": {}, ".jsx": {},
	".go": {}, ".py": {}, ".rb": {}, ".rs": {}, ".java": {}, ".c": {}, ".h": {},
	".cpp": {}, ".cs": {}, ".php": {}, ".sh": {}, ".css": {}, ".html": {},
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".sql": {}, ".xml": {},
}

// AttachmentOpts for commands that accept an attachment.
type AttachmentOpts struct {
	Path string
}

// GetAttachmentOpts on the given command.
func GetAttachmentOpts(cmd *cobra.Command) *AttachmentOpts {
	opts := &AttachmentOpts{}
	cmd.Flags().StringVarP(&opts.Path, "attach", "a", "", "attach a code/text file or an image to the first message")
	return opts
}

// ParseAttachment loads the file behind the given path as an attachment.
// Returns nil if the path is empty.
func ParseAttachment(path string) (*Attachment, error) {
	if path == "" {
		return nil, nil
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "expanding path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "getting os stats")
	}
	if info.IsDir() {
		return nil, errors.Errorf("cannot attach a directory (%s)", path)
	}
	if info.Size() > MaxAttachmentSize {
		return nil, errors.Errorf("attachment exceeds the %d byte limit (%s)", MaxAttachmentSize, path)
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}

	name := filepath.Base(path)
	extension := strings.ToLower(filepath.Ext(path))
	if mimeType, ok := imageMimeTypes[extension]; ok {
		return &Attachment{Name: name, MimeType: mimeType, Data: bytes}, nil
	}
	if _, ok := textExtensions[extension]; ok {
		return &Attachment{Name: name, MimeType: "text/plain", Text: string(bytes)}, nil
	}
	return nil, errors.Errorf("unsupported attachment type (%s): use an image or a text/code file", extension)
}
