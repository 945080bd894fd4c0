package runner

import (
	"encoding/base64"
	"log/slog"

	"github.com/rhuss/runcode/pkg/sandbox"
)

// Image is a decoded image produced by an execution.
type Image struct {
	MIME string
	Data []byte
}

// ExtractImages decodes image results in order, preferring PNG over JPEG
// over SVG when a result carries several. At most max images are returned;
// max <= 0 means no limit. Undecodable images are skipped.
func ExtractImages(exec *sandbox.Execution, max int) []Image {
	if exec == nil {
		return nil
	}

	var images []Image
	for i, r := range exec.Results {
		if max > 0 && len(images) >= max {
			break
		}

		var (
			img Image
			err error
		)
		switch {
		case r.PNG != "":
			img.MIME = "image/png"
			img.Data, err = base64.StdEncoding.DecodeString(r.PNG)
		case r.JPEG != "":
			img.MIME = "image/jpeg"
			img.Data, err = base64.StdEncoding.DecodeString(r.JPEG)
		case r.SVG != "":
			img.MIME = "image/svg+xml"
			img.Data = []byte(r.SVG)
		default:
			continue
		}
		if err != nil {
			slog.Warn("skipping undecodable image result", "index", i, "mime", img.MIME, "error", err)
			continue
		}
		images = append(images, img)
	}
	return images
}
