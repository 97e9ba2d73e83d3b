package mailparse

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
)

// isAttachmentPart decides whether a part counts as an attachment: it carries
// a filename, an attachment disposition, or an inline disposition with
// non-body content. The decoded part tree and the raw multipart walk both
// apply this predicate so the two stay index-aligned.
func isAttachmentPart(disposition, contentType, filename string) bool {
	if filename != "" || disposition == "attachment" {
		return true
	}
	return disposition == "inline" && contentType != "text/plain" && contentType != "text/html"
}

// rawAttachmentBodies walks the undecoded MIME tree and returns the raw body
// bytes of every attachment part, in tree order. Any structural trouble
// yields nil and the caller degrades gracefully.
func rawAttachmentBodies(raw []byte) [][]byte {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil
	}
	return walkRawParts(msg.Body, params["boundary"])
}

func walkRawParts(body io.Reader, boundary string) [][]byte {
	if boundary == "" {
		return nil
	}
	var out [][]byte
	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextRawPart()
		if err != nil {
			return out
		}
		mediaType, params, perr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if perr != nil {
			mediaType = ""
		}
		if strings.HasPrefix(mediaType, "multipart/") {
			out = append(out, walkRawParts(part, params["boundary"])...)
			continue
		}
		disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if !isAttachmentPart(disposition, mediaType, partFileName(part)) {
			continue
		}
		data, rerr := io.ReadAll(part)
		if rerr != nil {
			return out
		}
		out = append(out, data)
	}
}

func partFileName(part *multipart.Part) string {
	if name := part.FileName(); name != "" {
		return name
	}
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err == nil {
		return params["name"]
	}
	return ""
}
