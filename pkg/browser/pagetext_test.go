package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantNot []string
	}{
		{
			name: "title and blocks",
			input: `<html><head><title> Example   Domain </title>
				<script>alert('x')</script><style>p { color: red }</style></head>
				<body><h1>Example Domain</h1>
				<p>This domain is for use in
				   illustrative examples.</p>
				<p><a href="/more">More information...</a></p></body></html>`,
			want:    "Example Domain\n\nExample Domain\nThis domain is for use in illustrative examples.\nMore information...",
			wantNot: []string{"alert", "color"},
		},
		{
			name:  "inline elements stay on one line",
			input: `<body><p>Hello <b>bold</b> and <i>italic</i> world</p></body>`,
			want:  "Hello bold and italic world",
		},
		{
			name:    "noise elements dropped",
			input:   `<body><div>Content</div><noscript>No JS</noscript><svg><text>icon</text></svg><!-- hidden --></body>`,
			want:    "Content",
			wantNot: []string{"No JS", "icon", "hidden"},
		},
		{
			name:  "line breaks",
			input: `<body>first<br>second</body>`,
			want:  "first\nsecond",
		},
		{
			name:  "empty document",
			input: ``,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PageText(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			for _, s := range tt.wantNot {
				assert.NotContains(t, got, s)
			}
		})
	}
}
