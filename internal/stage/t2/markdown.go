package t2

import (
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

var aboutConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// aboutToMarkdown renders the "At a glance" section's inner HTML as
// Markdown. Grounded on the teacher's processor.go asset-description
// conversion; the about section never carries tables so the table plugin
// is left out.
func aboutToMarkdown(html string) (string, error) {
	md, err := aboutConverter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("t2: convert about html: %w", err)
	}
	return md, nil
}
