package formats

import (
	"net/url"
	"reflect"
	"testing"

	"github.com/tubeget/tubeget/errs"
	"github.com/tubeget/tubeget/types"
	"github.com/tubeget/tubeget/youtube/cipher"
)

// patchScript yields the signature mapping "abcdefgh" -> "cedfba" and the
// n-transform mapping "abcdef" -> "cfde".
const patchScript = `var Iq={mK:function(a){a.reverse()},
q2:function(a,b){a.splice(0,b)},
t7:function(a,b){var c=a[0];a[0]=a[b%a.length];a[b%a.length]=c}};
var vy=function(a){a=a.split("");Iq.mK(a,3);Iq.q2(a,2);Iq.t7(a,3);return a.join("")};
c&&(d=e.get("n"))&&(b=xN(b),e.set("n",b));
xN=function(b){b=b.split("");if(b.length%2==1)b.reverse();b.splice(0,2);var d=b[0];b[0]=b[3%b.length];b[3%b.length]=d;b.unshift(b.pop());return b.join("")};`

// patchScriptNoN is the same signature pipeline with no n-transform, so any
// n patching attempt fails.
const patchScriptNoN = `var Iq={mK:function(a){a.reverse()},
q2:function(a,b){a.splice(0,b)},
t7:function(a,b){var c=a[0];a[0]=a[b%a.length];a[b%a.length]=c}};
var vy=function(a){a=a.split("");Iq.mK(a,3);Iq.q2(a,2);Iq.t7(a,3);return a.join("")};`

func newPatchCipher(t *testing.T, script string) *cipher.Cipher {
	t.Helper()
	c, err := cipher.New(script)
	if err != nil {
		t.Fatalf("cipher.New() error: %v", err)
	}
	return c
}

func cipherEntry(streamURL string) string {
	return "s=abcdefgh&sp=sig&url=" + url.QueryEscape(streamURL)
}

func TestApplySignaturesPatchesSigAndN(t *testing.T) {
	c := newPatchCipher(t, patchScript)
	manifest := []types.Format{
		{Itag: 137, SignatureCipher: cipherEntry("https://r1.example.com/videoplayback?id=1&n=abcdef")},
	}

	if err := ApplySignatures(manifest, types.PlayabilityStatus{Status: "OK"}, c); err != nil {
		t.Fatalf("ApplySignatures() error: %v", err)
	}

	u, err := url.Parse(manifest[0].URL)
	if err != nil {
		t.Fatalf("patched url does not parse: %v", err)
	}
	q := u.Query()
	if got := q.Get("sig"); got != "cedfba" {
		t.Errorf("sig = %q, want %q", got, "cedfba")
	}
	if got := q.Get("n"); got != "cfde" {
		t.Errorf("n = %q, want %q", got, "cfde")
	}
	if got := q.Get("id"); got != "1" {
		t.Errorf("unrelated query param lost: id = %q", got)
	}
}

func TestApplySignaturesDefaultSigParam(t *testing.T) {
	c := newPatchCipher(t, patchScriptNoN)
	// no sp key: the signature goes under "sig"
	manifest := []types.Format{
		{Itag: 18, SignatureCipher: "s=abcdefgh&url=" + url.QueryEscape("https://r1.example.com/videoplayback?ratebypass=yes")},
	}

	if err := ApplySignatures(manifest, types.PlayabilityStatus{Status: "OK"}, c); err != nil {
		t.Fatalf("ApplySignatures() error: %v", err)
	}
	u, _ := url.Parse(manifest[0].URL)
	if got := u.Query().Get("sig"); got != "cedfba" {
		t.Errorf("sig = %q, want %q", got, "cedfba")
	}
}

func TestApplySignaturesRatebypassSkipsN(t *testing.T) {
	// The cipher has no n-transform; a present ratebypass key must make
	// that irrelevant, whatever its value.
	for _, rb := range []string{"yes", "no"} {
		t.Run("ratebypass="+rb, func(t *testing.T) {
			c := newPatchCipher(t, patchScriptNoN)
			manifest := []types.Format{
				{Itag: 22, SignatureCipher: cipherEntry("https://r1.example.com/videoplayback?ratebypass=" + rb + "&n=abcdef")},
			}

			if err := ApplySignatures(manifest, types.PlayabilityStatus{Status: "OK"}, c); err != nil {
				t.Fatalf("ApplySignatures() error: %v", err)
			}
			u, _ := url.Parse(manifest[0].URL)
			if got := u.Query().Get("n"); got != "abcdef" {
				t.Errorf("n = %q, want untouched %q", got, "abcdef")
			}
		})
	}
}

func TestApplySignaturesPresignedUntouched(t *testing.T) {
	c := newPatchCipher(t, patchScript)
	presigned := types.Format{
		Itag:     22,
		URL:      "https://r1.example.com/videoplayback?sig=already&n=abcdef",
		MimeType: "video/mp4",
	}
	manifest := []types.Format{presigned}

	if err := ApplySignatures(manifest, types.PlayabilityStatus{Status: "OK"}, c); err != nil {
		t.Fatalf("ApplySignatures() error: %v", err)
	}
	if !reflect.DeepEqual(manifest[0], presigned) {
		t.Errorf("pre-signed entry changed: %+v", manifest[0])
	}
}

func TestApplySignaturesLiveStream(t *testing.T) {
	c := newPatchCipher(t, patchScript)
	manifest := []types.Format{
		{Itag: 137, SignatureCipher: cipherEntry("https://r1.example.com/videoplayback?id=1")},
		{Itag: 95}, // no url, no cipher: live manifest entry
	}
	original := make([]types.Format, len(manifest))
	copy(original, manifest)

	err := ApplySignatures(manifest, types.PlayabilityStatus{Status: "OK", LiveStream: true}, c)
	if err != errs.ErrLiveStream {
		t.Fatalf("err = %v, want errs.ErrLiveStream", err)
	}
	if !reflect.DeepEqual(manifest, original) {
		t.Error("failed patch must leave the manifest untouched")
	}
}

func TestApplySignaturesSkipsBareEntriesWhenNotLive(t *testing.T) {
	c := newPatchCipher(t, patchScript)
	manifest := []types.Format{
		{Itag: 95},
		{Itag: 137, SignatureCipher: cipherEntry("https://r1.example.com/videoplayback?id=1")},
	}

	if err := ApplySignatures(manifest, types.PlayabilityStatus{Status: "OK"}, c); err != nil {
		t.Fatalf("ApplySignatures() error: %v", err)
	}
	if manifest[0].URL != "" {
		t.Errorf("bare entry should stay empty, got %q", manifest[0].URL)
	}
	if manifest[1].URL == "" {
		t.Error("ciphered entry should have been patched")
	}
}

func TestApplySignaturesErrorLeavesManifestUntouched(t *testing.T) {
	// First entry patches fine; the second needs the n-transform the script
	// does not have. The error must roll back everything.
	c := newPatchCipher(t, patchScriptNoN)
	manifest := []types.Format{
		{Itag: 18, SignatureCipher: cipherEntry("https://r1.example.com/videoplayback?ratebypass=yes")},
		{Itag: 137, SignatureCipher: cipherEntry("https://r2.example.com/videoplayback?n=abcdef")},
	}
	original := make([]types.Format, len(manifest))
	copy(original, manifest)

	err := ApplySignatures(manifest, types.PlayabilityStatus{Status: "OK"}, c)
	if err == nil {
		t.Fatal("expected error from missing n-transform")
	}
	if !cipher.IsPatternDrift(err) {
		t.Errorf("expected PATTERN_DRIFT through the patcher, got %v", err)
	}
	if !reflect.DeepEqual(manifest, original) {
		t.Error("failed patch must leave the manifest untouched")
	}
}
