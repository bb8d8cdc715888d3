package render

import (
	"regexp"

	"github.com/adnsv/go-xltmpl/xl"
	"github.com/adnsv/go-xltmpl/xl/reassemble"
	"github.com/adnsv/go-xltmpl/xl/rowmodel"
)

var siRe = regexp.MustCompile(`(?s)<si>(.*?)</si>`)

// parseSharedStrings token-reassembles xl/sharedStrings.xml, then extracts
// each `<si>` entry's concatenated text in table order. A shared string that
// still carries "{{" after reassembly is flagged HasTemplate so rowmodel can
// promote a `<c t="s">` cell referencing it to a templated inline string
// instead of leaving the shared-string index in place.
func parseSharedStrings(data []byte) ([]rowmodel.SharedString, []string) {
	reassembled := reassemble.Document(data)
	var out []rowmodel.SharedString
	for _, m := range siRe.FindAllSubmatch(reassembled.Bytes, -1) {
		text := concatSIText(m[1])
		out = append(out, rowmodel.SharedString{
			Text:        text,
			HasTemplate: xl.HasExpression(text),
		})
	}
	return out, reassembled.Warnings
}

func concatSIText(siBody []byte) string {
	var text string
	for _, m := range tRunCapRe.FindAllSubmatch(siBody, -1) {
		text += string(m[1])
	}
	return xl.DecodeXMLText(text)
}

var tRunCapRe = regexp.MustCompile(`(?s)<t\b[^>]*>(.*?)</t>`)
