package polcloud

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// fileField is the multipart field every uploaded file is sent under.
const fileField = "file[]"

// openFile is replaced in tests to observe the handles a body holds.
var openFile = os.Open

// multipartBody streams files as a multipart/form-data body without
// buffering their content. The length is exact so the request is not
// chunked.
type multipartBody struct {
	io.Reader
	contentType string
	length      int64
	files       []*os.File
}

func newMultipartBody(paths ...string) (*multipartBody, error) {
	var (
		buf     bytes.Buffer
		readers []io.Reader
		body    = &multipartBody{}
	)
	mw := multipart.NewWriter(&buf)

	for _, path := range paths {
		f, err := openFile(path)
		if err != nil {
			body.Close()
			return nil, err
		}
		body.files = append(body.files, f)

		fi, err := f.Stat()
		if err != nil {
			body.Close()
			return nil, err
		}

		if _, err := mw.CreateFormFile(fileField, filepath.Base(path)); err != nil {
			body.Close()
			return nil, err
		}
		header := append([]byte(nil), buf.Bytes()...)
		buf.Reset()

		readers = append(readers, bytes.NewReader(header), f)
		body.length += int64(len(header)) + fi.Size()
	}
	if err := mw.Close(); err != nil {
		body.Close()
		return nil, err
	}
	trailer := append([]byte(nil), buf.Bytes()...)
	readers = append(readers, bytes.NewReader(trailer))
	body.length += int64(len(trailer))

	body.Reader = io.MultiReader(readers...)
	body.contentType = mw.FormDataContentType()
	return body, nil
}

// Close releases every file opened for the body.
func (b *multipartBody) Close() error {
	var first error
	for _, f := range b.files {
		if err := f.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing %s: %w", f.Name(), err)
		}
	}
	b.files = nil
	return first
}

// progressReader reports the cumulative byte count after every read.
type progressReader struct {
	r        io.Reader
	sent     int64
	observer Observer
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.observer.Progress(p.sent)
	}
	return n, err
}
