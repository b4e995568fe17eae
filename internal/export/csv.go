// Package export turns a round's distribution list into things an organiser
// can hand out: a CSV file, per-giver QR cards and a copy in object storage.
package export

import (
	"io"
	"strings"

	"github.com/sakif/secret-santa/internal/model"
)

// CodesFilename is the download name of the distribution list.
const CodesFilename = "secret_santa_codes.csv"

// CodesCSV renders the giver/code list. The header row is bare; every value
// is double-quoted with embedded quotes doubled, and lines are separated by a
// single "\n" with no trailing newline. Receivers are left out so the file can
// be shared with whoever hands out the codes.
func CodesCSV(pairs []model.Pair) []byte {
	var b strings.Builder
	b.WriteString("giver,code")
	for _, p := range pairs {
		b.WriteByte('\n')
		b.WriteString(quote(p.Giver))
		b.WriteByte(',')
		b.WriteString(quote(p.Code))
	}
	return []byte(b.String())
}

// WriteCodesCSV writes CodesCSV(pairs) to w.
func WriteCodesCSV(w io.Writer, pairs []model.Pair) error {
	_, err := w.Write(CodesCSV(pairs))
	return err
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
