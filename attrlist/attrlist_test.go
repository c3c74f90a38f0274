package attrlist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts Options
		want Attributes
	}{
		{
			name: "empty",
			src:  "  ",
			want: Attributes{},
		},
		{
			name: "positional with names",
			src:  "source,go,linenums",
			opts: Options{Positional: []string{"style", "language"}},
			want: Attributes{"1": "source", "style": "source", "2": "go", "language": "go", "3": "linenums"},
		},
		{
			name: "named values",
			src:  `width=200, alt="A, B", title='Hello'`,
			want: Attributes{"width": "200", "alt": "A, B", "title": "Hello"},
		},
		{
			name: "double quoted positional is literal",
			src:  `"*not bold*"`,
			opts: Options{Subs: strings.ToUpper},
			want: Attributes{"1": "*not bold*"},
		},
		{
			name: "single quoted value gets subs",
			src:  `caption='fig'`,
			opts: Options{Subs: strings.ToUpper},
			want: Attributes{"caption": "FIG"},
		},
		{
			name: "single quoted title is literal",
			src:  `title='fig'`,
			opts: Options{Subs: strings.ToUpper},
			want: Attributes{"title": "fig"},
		},
		{
			name: "options fan out",
			src:  `options="header, footer,autowidth"`,
			want: Attributes{"header-option": "", "footer-option": "", "autowidth-option": ""},
		},
		{
			name: "opts alias",
			src:  `opts=nowrap`,
			want: Attributes{"nowrap-option": ""},
		},
		{
			name: "unquoted options take the bare entries after them",
			src:  `options=header,footer, autowidth,cols=2,wide`,
			want: Attributes{"header-option": "", "footer-option": "", "autowidth-option": "", "cols": "2", "5": "wide"},
		},
		{
			name: "quoted options stop at the quote",
			src:  `opts="header",footer`,
			want: Attributes{"header-option": "", "2": "footer"},
		},
		{
			name: "quoted value keeps trailing space",
			src:  `caption="Listing A: ",role=lead  `,
			want: Attributes{"caption": "Listing A: ", "role": "lead"},
		},
		{
			name: "unbalanced quote degrades",
			src:  `"no end, second`,
			want: Attributes{"1": `"no end`, "2": "second"},
		},
		{
			name: "escaped quote",
			src:  `alt="say \"hi\""`,
			want: Attributes{"alt": `say "hi"`},
		},
		{
			name: "words with spaces",
			src:  `quote, Abraham Lincoln, Address`,
			opts: Options{Positional: []string{"style", "attribution", "citetitle"}},
			want: Attributes{
				"1": "quote", "style": "quote",
				"2": "Abraham Lincoln", "attribution": "Abraham Lincoln",
				"3": "Address", "citetitle": "Address",
			},
		},
		{
			name: "skipped positional",
			src:  `,java`,
			opts: Options{Positional: []string{"style", "language"}},
			want: Attributes{"2": "java", "language": "java"},
		},
		{
			name: "None value is ignored",
			src:  `caption=None`,
			want: Attributes{},
		},
		{
			name: "empty named value",
			src:  `caption=,width=10`,
			want: Attributes{"caption": "", "width": "10"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.src, tt.opts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDelimiter(t *testing.T) {
	got := Parse("a;b=c", Options{Delimiter: ';'})
	assert.Equal(t, Attributes{"1": "a", "b": "c"}, got)
}

func TestApplyShorthand(t *testing.T) {
	attrs := Parse("source#main.lead.big%linenums%nowrap,go", Options{})
	ok := ApplyShorthand(attrs)

	assert.True(t, ok)
	assert.Equal(t, "source", attrs["style"])
	assert.Equal(t, "main", attrs["id"])
	assert.Equal(t, []string{"lead", "big"}, attrs.Roles())
	assert.True(t, attrs.HasOption("linenums"))
	assert.True(t, attrs.HasOption("nowrap"))
}

func TestApplyShorthandKeepsExistingRole(t *testing.T) {
	attrs := Attributes{"1": ".extra", "role": "base"}
	assert.True(t, ApplyShorthand(attrs))
	assert.Equal(t, "base extra", attrs["role"])
	_, hasStyle := attrs["style"]
	assert.False(t, hasStyle)
}

func TestApplyShorthandInvalid(t *testing.T) {
	attrs := Attributes{"1": "#"}
	assert.False(t, ApplyShorthand(attrs))
}

func TestApplyShorthandWithSpaces(t *testing.T) {
	attrs := Attributes{"1": "Mr. Smith"}
	assert.True(t, ApplyShorthand(attrs))
	assert.Equal(t, "Mr. Smith", attrs["style"])
}
