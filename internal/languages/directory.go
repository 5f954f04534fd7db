// Package languages holds the immutable code-to-name directory used to render
// prompts and the /languages listing.
package languages

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"chatlibre/internal/models"
)

// Directory is safe for concurrent use; it never changes after construction.
type Directory struct {
	codes []string
	names map[string]string
}

// New builds a directory from the compiled-in ISO 639-1 table.
func New() *Directory {
	namer := display.English.Languages()
	entries := make([][2]string, 0, len(iso6391))
	for _, code := range iso6391 {
		name := code
		if tag, err := language.Parse(code); err == nil {
			if n := namer.Name(tag); n != "" {
				name = n
			}
		}
		entries = append(entries, [2]string{code, name})
	}
	return fromEntries(entries)
}

// Load reads a CSV table with rows of code,name[,native].
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open languages file %q: %w", path, err)
	}
	defer f.Close()

	dir, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse languages file %q: %w", path, err)
	}
	return dir, nil
}

// Parse reads a CSV table with rows of code,name[,native].
func Parse(r io.Reader) (*Directory, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var entries [][2]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 2 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected at least code and name", line)
		}
		code := strings.TrimSpace(record[0])
		name := strings.TrimSpace(record[1])
		if code == "" || name == "" {
			continue
		}
		entries = append(entries, [2]string{code, name})
	}
	if len(entries) == 0 {
		return nil, errors.New("no languages defined")
	}
	return fromEntries(entries), nil
}

func fromEntries(entries [][2]string) *Directory {
	d := &Directory{
		codes: make([]string, 0, len(entries)),
		names: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		if _, dup := d.names[e[0]]; dup {
			continue
		}
		d.codes = append(d.codes, e[0])
		d.names[e[0]] = e[1]
	}
	return d
}

// Lookup returns the display name for code. Codes missing from the table are
// rendered from their BCP 47 form when possible (pt-BR, zh_Hant), otherwise
// the code itself is returned.
func (d *Directory) Lookup(code string) string {
	if name, ok := d.names[code]; ok {
		return name
	}
	normalized := strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
	if name, ok := d.names[strings.ToLower(normalized)]; ok {
		return name
	}
	if tag, err := language.Parse(normalized); err == nil {
		if name := display.English.Tags().Name(tag); name != "" {
			return name
		}
	}
	return code
}

// Codes returns the supported codes in table order.
func (d *Directory) Codes() []string {
	out := make([]string, len(d.codes))
	copy(out, d.codes)
	return out
}

// List returns the /languages payload: every language may target every code.
func (d *Directory) List() []models.Language {
	targets := d.Codes()
	out := make([]models.Language, 0, len(d.codes))
	for _, code := range d.codes {
		out = append(out, models.Language{
			Code:    code,
			Name:    d.names[code],
			Targets: targets,
		})
	}
	return out
}

// Len reports the number of languages in the table.
func (d *Directory) Len() int {
	return len(d.codes)
}

var iso6391 = []string{
	"aa", "ab", "ae", "af", "ak", "am", "an", "ar", "as", "av", "ay", "az",
	"ba", "be", "bg", "bi", "bm", "bn", "bo", "br", "bs",
	"ca", "ce", "ch", "co", "cr", "cs", "cu", "cv", "cy",
	"da", "de", "dv", "dz",
	"ee", "el", "en", "eo", "es", "et", "eu",
	"fa", "ff", "fi", "fj", "fo", "fr", "fy",
	"ga", "gd", "gl", "gn", "gu", "gv",
	"ha", "he", "hi", "ho", "hr", "ht", "hu", "hy", "hz",
	"ia", "id", "ie", "ig", "ii", "ik", "io", "is", "it", "iu",
	"ja", "jv",
	"ka", "kg", "ki", "kj", "kk", "kl", "km", "kn", "ko", "kr", "ks", "ku", "kv", "kw", "ky",
	"la", "lb", "lg", "li", "ln", "lo", "lt", "lu", "lv",
	"mg", "mh", "mi", "mk", "ml", "mn", "mr", "ms", "mt", "my",
	"na", "nb", "nd", "ne", "ng", "nl", "nn", "no", "nr", "nv", "ny",
	"oc", "oj", "om", "or", "os",
	"pa", "pi", "pl", "ps", "pt",
	"qu",
	"rm", "rn", "ro", "ru", "rw",
	"sa", "sc", "sd", "se", "sg", "si", "sk", "sl", "sm", "sn", "so", "sq", "sr", "ss", "st", "su", "sv", "sw",
	"ta", "te", "tg", "th", "ti", "tk", "tl", "tn", "to", "tr", "ts", "tt", "tw", "ty",
	"ug", "uk", "ur", "uz",
	"ve", "vi", "vo",
	"wa", "wo",
	"xh",
	"yi", "yo",
	"za", "zh", "zu",
}
