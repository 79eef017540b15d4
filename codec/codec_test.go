package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePages struct {
	byPath map[string]PageRef
}

func (f fakePages) PageFor(target string) (PageRef, bool) {
	ref, ok := f.byPath[target]
	return ref, ok
}

func (f fakePages) PathFor(ref PageRef) (string, bool) {
	for p, r := range f.byPath {
		if r.ID == ref.ID {
			return p, true
		}
	}
	return "", false
}

func TestToRemote(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced code with language",
			in:   "```go\nfmt.Println(\"<hi>\")\n```\n",
			want: `<pre><code class="language-go">fmt.Println(&quot;&lt;hi&gt;&quot;)</code></pre>`,
		},
		{
			name: "task list",
			in:   "- [ ] todo\n- [x] done\n",
			want: `<ul class="task-list"><li><input type="checkbox" />todo</li><li><input type="checkbox" checked="checked" />done</li></ul>`,
		},
		{
			name: "reference",
			in:   "{jira:ABC-1}",
			want: `<p><ac:structured-macro ac:name="jira"><ac:parameter ac:name="key">ABC-1</ac:parameter></ac:structured-macro></p>`,
		},
		{
			name: "reference with flags matches namespace case-insensitively",
			in:   "{JIRA:ABC-1|showSummary,count}",
			want: `<p><ac:structured-macro ac:name="jira"><ac:parameter ac:name="key">ABC-1</ac:parameter>` +
				`<ac:parameter ac:name="showSummary">true</ac:parameter><ac:parameter ac:name="count">true</ac:parameter></ac:structured-macro></p>`,
		},
		{
			name: "reference with multi-valued option",
			in:   "{jira:ABC-1|columns=key,summary,status}",
			want: `<p><ac:structured-macro ac:name="jira"><ac:parameter ac:name="key">ABC-1</ac:parameter>` +
				`<ac:parameter ac:name="columns">key,summary,status</ac:parameter></ac:structured-macro></p>`,
		},
		{
			name: "unknown namespace stays text",
			in:   "{foo:bar}",
			want: `<p>{foo:bar}</p>`,
		},
		{
			name: "attachment image with size",
			in:   "![diagram](./page.attachments/diagram.png){width=200 height=100}",
			want: `<p><ac:image ac:alt="diagram" ac:width="200" ac:height="100"><ri:attachment ri:filename="diagram.png" /></ac:image></p>`,
		},
		{
			name: "attachment link",
			in:   "[the spec](./page.attachments/spec.pdf)",
			want: `<p><ac:link><ri:attachment ri:filename="spec.pdf" /><ac:plain-text-link-body><![CDATA[the spec]]></ac:plain-text-link-body></ac:link></p>`,
		},
		{
			name: "external link and image pass through",
			in:   "[site](https://example.com) ![logo](https://example.com/a.png)",
			want: `<p><a href="https://example.com">site</a> <img src="https://example.com/a.png" alt="logo" /></p>`,
		},
		{
			name: "inline formatting",
			in:   "**b** *i* _u_ ~~s~~ snake_case_name",
			want: `<p><strong>b</strong> <em>i</em> <em>u</em> <del>s</del> snake_case_name</p>`,
		},
		{
			name: "escapes",
			in:   `a < b & \*not\*`,
			want: `<p>a &lt; b &amp; *not*</p>`,
		},
		{
			name: "paragraph line breaks",
			in:   "one\ntwo\n\nthree",
			want: `<p>one<br />two</p><p>three</p>`,
		},
		{
			name: "heading rule and quote",
			in:   "# T\n\n---\n\n> quoted",
			want: `<h1>T</h1><hr /><blockquote><p>quoted</p></blockquote>`,
		},
		{
			name: "nested lists",
			in:   "1. one\n2. two\n  - sub\n",
			want: `<ol><li>one</li><li>two<ul><li>sub</li></ul></li></ol>`,
		},
		{
			name: "table",
			in:   "| a | b |\n| --- | --- |\n| 1 | `x|y` |",
			want: `<table><tbody><tr><th>a</th><th>b</th></tr><tr><td>1</td><td><code>x|y</code></td></tr></tbody></table>`,
		},
		{
			name: "macro fence with title",
			in:   ":::info Heads up\nBody **bold**\n:::",
			want: `<ac:structured-macro ac:name="info"><ac:parameter ac:name="title">Heads up</ac:parameter>` +
				`<ac:rich-text-body><p>Body <strong>bold</strong></p></ac:rich-text-body></ac:structured-macro>`,
		},
		{
			name: "body-less macro",
			in:   ":::toc\n:::",
			want: `<ac:structured-macro ac:name="toc"></ac:structured-macro>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToRemote(tt.in, DefaultOptions()))
		})
	}
}

func TestToRemote_CodeImmunity(t *testing.T) {
	t.Run("inline code", func(t *testing.T) {
		got := ToRemote("Use `{jira:X}` and `![a](x.attachments/b.png)`", DefaultOptions())
		assert.Equal(t, `<p>Use <code>{jira:X}</code> and <code>![a](x.attachments/b.png)</code></p>`, got)
	})

	t.Run("fenced block", func(t *testing.T) {
		got := ToRemote("```\n{jira:X}\n- [ ] no\n[a](b.attachments/c.pdf)\n:::info\n```", DefaultOptions())
		assert.Equal(t, "<pre><code>{jira:X}\n- [ ] no\n[a](b.attachments/c.pdf)\n:::info</code></pre>", got)
		assert.NotContains(t, got, "ac:")
	})
}

func TestToRemote_UnbalancedMacroIsText(t *testing.T) {
	got := ToRemote(":::info\ntext\n", DefaultOptions())
	assert.NotContains(t, got, "structured-macro")
	assert.Contains(t, got, ":::info")
}

func TestToRemote_PageLinks(t *testing.T) {
	opts := DefaultOptions()
	opts.Pages = fakePages{byPath: map[string]PageRef{"../guide.md": {ID: "42", Title: "Guide"}}}

	got := ToRemote("[the guide](../guide.md#setup) and [missing](nope.md)", opts)
	assert.Equal(t, `<p><ac:link ac:anchor="setup"><ri:page ri:content-id="42" ri:content-title="Guide" />`+
		`<ac:plain-text-link-body><![CDATA[the guide]]></ac:plain-text-link-body></ac:link>`+
		` and <a href="nope.md">missing</a></p>`, got)

	back := FromRemote(got, opts)
	assert.Equal(t, "[the guide](../guide.md#setup) and [missing](nope.md)\n", back)
}

func TestFromRemote(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "\n"},
		{"attachment image flattens", `<p><ac:image ac:alt="diagram"><ri:attachment ri:filename="diagram.png" /></ac:image></p>`,
			"![diagram](./attachments/diagram.png)\n"},
		{"attachment link without body", `<p><ac:link><ri:attachment ri:filename="spec.pdf" /></ac:link></p>`,
			"[spec.pdf](./attachments/spec.pdf)\n"},
		{"filename with space", `<p><ac:image><ri:attachment ri:filename="my diagram.png" /></ac:image></p>`,
			"![](./attachments/my%20diagram.png)\n"},
		{"code macro", `<ac:structured-macro ac:name="code"><ac:parameter ac:name="language">python</ac:parameter>` +
			`<ac:plain-text-body><![CDATA[print("hi")]]></ac:plain-text-body></ac:structured-macro>`,
			"```python\nprint(\"hi\")\n```\n"},
		{"user mention", `<p>Hi <ac:link><ri:user ri:account-id="abc" /></ac:link></p>`, "Hi @abc\n"},
		{"native task list", `<ac:task-list><ac:task><ac:task-status>complete</ac:task-status>` +
			`<ac:task-body>Ship it</ac:task-body></ac:task></ac:task-list>`, "- [x] Ship it\n"},
		{"malformed markup", "<p>unclosed <strong>bold", "unclosed **bold**\n"},
		{"pretty printed", "<p>\n  a\n  b\n</p>", "a b\n"},
		{"no blank edges", "<p></p><p>x</p><p> </p>", "x\n"},
		{"emphasis keeps edge spaces outside", "<p><strong>bold </strong>text</p>", "**bold** text\n"},
		{"code span with backtick", "<p><code>a`b</code></p>", "`` a`b ``\n"},
		{"reference grouping", `<p><ac:structured-macro ac:name="jira"><ac:parameter ac:name="key">X-1</ac:parameter>` +
			`<ac:parameter ac:name="a">true</ac:parameter><ac:parameter ac:name="b">true</ac:parameter>` +
			`<ac:parameter ac:name="columns">k,s</ac:parameter></ac:structured-macro></p>`, "{jira:X-1|a,b|columns=k,s}\n"},
		{"table without header cells", "<table><tr><td>a</td><td>b|c</td></tr><tr><td>1</td></tr></table>",
			"| a | b\\|c |\n| --- | --- |\n| 1 |  |\n"},
		{"unknown macro with body", `<ac:structured-macro ac:name="panel"><ac:rich-text-body><p>x</p></ac:rich-text-body></ac:structured-macro>`,
			":::panel\nx\n:::\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromRemote(tt.in, DefaultOptions()))
		})
	}
}

func TestFromRemote_EndsWithSingleNewline(t *testing.T) {
	inputs := []string{"", "<p>a</p>", "<p>a</p>\n\n\n", "<pre><code>x\n\n</code></pre>", "<ul><li>a</li></ul>"}
	for _, in := range inputs {
		out := FromRemote(in, DefaultOptions())
		require.True(t, strings.HasSuffix(out, "\n"), "%q", out)
		assert.False(t, strings.HasSuffix(out, "\n\n"), "%q", out)
		assert.False(t, strings.HasPrefix(out, "\n") && out != "\n", "%q", out)
	}
}

func TestAttachmentScenario(t *testing.T) {
	remote := ToRemote("![](./page.attachments/diagram.png)", DefaultOptions())
	require.Contains(t, remote, `<ri:attachment ri:filename="diagram.png" />`)
	require.Contains(t, remote, "<ac:image>")
	assert.Equal(t, "![](./attachments/diagram.png)\n", FromRemote(remote, DefaultOptions()))
}

func TestAttachmentFilename(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"./page.attachments/diagram.png", "diagram.png", true},
		{"page.attachments/diagram.png", "diagram.png", true},
		{"../docs/page.attachments/a%20b.pdf", "a b.pdf", true},
		{"./attachments/x.png", "x.png", true},
		{"attachments/x.png", "x.png", true},
		{"./img/x.png", "", false},
		{"https://host/page.attachments/x.png", "", false},
		{"#page.attachments/x.png", "", false},
		{"page.attachments/", "", false},
	}
	for _, tt := range tests {
		got, ok := AttachmentFilename(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestReferencesCanBeDisabled(t *testing.T) {
	got := ToRemote("{jira:X}", Options{References: []string{}})
	assert.Equal(t, "<p>{jira:X}</p>", got)

	got = ToRemote("{gh:owner/repo#1}", Options{References: []string{"gh"}})
	assert.Contains(t, got, `ac:name="gh"`)
}
