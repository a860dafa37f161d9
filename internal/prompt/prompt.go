// Package prompt assembles the generation prompt from a question and the
// retrieved context passages.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

const (
	LanguageJapanese = "ja"
	LanguageEnglish  = "en"
)

const japanese = `
あなたはユーザの質問に答えるAIアシスタントです。<質問></質問>の質問に対して、<参考ドキュメント></参考ドキュメント>の内容に基づき、<回答のルール></回答のルール>に従って回答を行なってください。
<質問>
{{.Question}}
</質問>
<参考ドキュメント>
{{.Context}}
</参考ドキュメント>
<回答のルール>
* 必ず<参考ドキュメント></参考ドキュメント>をもとに回答してください。
* 回答文以外の文字列、および「参考ドキュメント」「画像」「表」といった言葉は一切出力しないでください。挨拶は不要です。
</回答のルール>
`

const english = `
You are an AI assistant answering the user's question. Answer the question in <question></question> based on the content of <reference></reference>, following the rules in <rules></rules>.
<question>
{{.Question}}
</question>
<reference>
{{.Context}}
</reference>
<rules>
* Always answer from the content of <reference></reference>.
* Output nothing but the answer itself. Never output words such as "reference", "image" or "table". No greeting.
</rules>
`

var templates = map[string]*template.Template{
	LanguageJapanese: template.Must(template.New(LanguageJapanese).Parse(japanese)),
	LanguageEnglish:  template.Must(template.New(LanguageEnglish).Parse(english)),
}

// Template renders prompts in one language.
type Template struct {
	tmpl *template.Template
}

// Default returns the Japanese template.
func Default() *Template {
	return &Template{tmpl: templates[LanguageJapanese]}
}

// New returns the template for language. An empty language selects Japanese.
func New(language string) (*Template, error) {
	if language == "" {
		return Default(), nil
	}
	tmpl, ok := templates[language]
	if !ok {
		return nil, fmt.Errorf("unknown prompt language %q", language)
	}
	return &Template{tmpl: tmpl}, nil
}

// Render substitutes the question and the newline-joined contexts.
// Substituted values are inserted verbatim.
func (t *Template) Render(question string, contexts []string) string {
	var b strings.Builder
	data := struct {
		Question string
		Context  string
	}{question, strings.Join(contexts, "\n")}
	// Executing with string fields into a strings.Builder cannot fail.
	_ = t.tmpl.Execute(&b, data)
	return b.String()
}
