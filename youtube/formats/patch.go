package formats

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tubeget/tubeget/errs"
	"github.com/tubeget/tubeget/internal/logger"
	"github.com/tubeget/tubeget/types"
	"github.com/tubeget/tubeget/youtube/cipher"
)

var log = logger.WithComponent(logger.ComponentPatch)

// ApplySignatures patches descrambled signatures into every manifest entry
// that needs one, in place.
//
// Entries that already carry a direct URL are pre-signed and are left
// byte-for-byte untouched. An entry with neither URL nor scrambled signature
// on a live stream means the recording is not ready yet
// (errs.ErrLiveStream); on a regular video such entries are skipped.
//
// Patching is two-phase: every replacement URL is computed first, and the
// manifest is only written once all of them succeeded. An error from the
// cipher engine therefore never leaves a half-patched manifest behind.
func ApplySignatures(manifest []types.Format, status types.PlayabilityStatus, ciph *cipher.Cipher) error {
	type patch struct {
		idx int
		url string
	}
	patches := make([]patch, 0, len(manifest))

	for i := range manifest {
		f := manifest[i]
		if strings.TrimSpace(f.URL) != "" {
			continue
		}
		if strings.TrimSpace(f.SignatureCipher) == "" {
			if status.LiveStream {
				return errs.ErrLiveStream
			}
			continue
		}

		patched, err := patchedURL(f.SignatureCipher, ciph)
		if err != nil {
			return fmt.Errorf("patch itag %d: %w", f.Itag, err)
		}
		log.Debug("patched stream url", map[string]any{"itag": f.Itag})
		patches = append(patches, patch{idx: i, url: patched})
	}

	for _, p := range patches {
		manifest[p.idx].URL = p.url
	}
	return nil
}

// patchedURL descrambles one signatureCipher value and splices the results
// into its stream URL.
func patchedURL(signatureCipher string, ciph *cipher.Cipher) (string, error) {
	vals, err := url.ParseQuery(signatureCipher)
	if err != nil {
		return "", fmt.Errorf("parse signatureCipher: %v", err)
	}
	scrambled := vals.Get("s")
	streamURL := vals.Get("url")
	if scrambled == "" || streamURL == "" {
		return "", fmt.Errorf("signatureCipher missing signature or url")
	}
	sp := vals.Get("sp")
	if sp == "" {
		sp = "sig"
	}

	plain, err := ciph.ApplySignature(scrambled)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(streamURL)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %v", err)
	}
	q := u.Query()
	q.Set(sp, plain)

	// The n throttle token only matters when the URL is not rate-exempt.
	// Presence of the ratebypass key marks the exemption, whatever its value.
	if !q.Has("ratebypass") {
		if n := q.Get("n"); n != "" {
			out, err := ciph.ApplyN(n)
			if err != nil {
				return "", err
			}
			q.Set("n", out)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
