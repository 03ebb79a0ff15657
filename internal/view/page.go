package view

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	g "maragu.dev/gomponents"
	hx "maragu.dev/gomponents-htmx"
	c "maragu.dev/gomponents/components"
	. "maragu.dev/gomponents/html"
)

const htmxScript = "https://unpkg.com/htmx.org@2.0.4"

// PageTitle returns the document title for a page.
func PageTitle(title string) string {
	if title != "" {
		return title + " - Chatroom"
	}
	return "Chatroom"
}

// ChatPage is the single page the browser client runs in. The join form,
// message list and composer are driven by /static/chat.js over the /ws
// socket; the upload form posts through htmx.
func ChatPage(version string) templ.Component {
	page := c.HTML5(c.HTML5Props{
		Title:    PageTitle(""),
		Language: "en",
		Head: []g.Node{
			Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
			Link(Rel("stylesheet"), Href("/static/chat.css")),
			Script(Src(htmxScript), Defer()),
			Script(Src("/static/chat.js"), Defer()),
		},
		Body: []g.Node{
			Main(Class("chat"),
				joinForm(),
				Section(ID("room"), Class("room hidden"),
					Aside(Class("members"),
						H2(g.Text("Online")),
						Ul(ID("members")),
					),
					Div(Class("conversation"),
						Ul(ID("messages"), Class("messages")),
						P(ID("typing"), Class("typing")),
						composer(),
						UploadForm(),
					),
				),
			),
			AdaptTemplToGomponent(footer(version)),
		},
	})
	return AdaptGomponentToTempl(page)
}

func joinForm() g.Node {
	return Form(ID("join-form"), Class("join"),
		H1(g.Text("Join a room")),
		Label(For("username"), g.Text("Username")),
		Input(ID("username"), Name("username"), Type("text"), MaxLength("20"), Required(), AutoComplete("off")),
		Label(For("secret-key"), g.Text("Secret key")),
		Input(ID("secret-key"), Name("secretKey"), Type("password"), Required()),
		Button(Type("submit"), g.Text("Join")),
		P(ID("join-error"), Class("error")),
	)
}

func composer() g.Node {
	return Form(ID("composer"), Class("composer"),
		Input(ID("message"), Name("content"), Type("text"), Placeholder("Say something"), AutoComplete("off")),
		Button(Type("submit"), g.Text("Send")),
	)
}

// UploadForm posts a file to /upload and swaps the returned attachment
// fragment into #attachment, where chat.js picks it up and sends it.
func UploadForm() g.Node {
	return Form(ID("upload-form"), Class("upload"),
		hx.Post("/upload"),
		hx.Encoding("multipart/form-data"),
		hx.Target("#attachment"),
		hx.Swap("innerHTML"),
		Input(Type("file"), Name("file"), Required()),
		Input(Type("text"), Name("name"), Placeholder("Display name (optional)"), MaxLength("120"), AutoComplete("off")),
		Button(Type("submit"), g.Text("Upload")),
		Div(ID("attachment")),
	)
}

// Attachment is the fragment returned to htmx after a successful upload.
func Attachment(url, name, mimeType string, size int64) g.Node {
	return Div(Class("attachment"),
		Data("url", url),
		Data("name", name),
		Data("mime-type", mimeType),
		Data("size", fmt.Sprint(size)),
		A(Href(url), Target("_blank"), g.Text(name)),
	)
}

// footer is written as a plain templ component so that templ output can sit
// inside the gomponents page.
func footer(version string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<footer class="footer">chatroom `+templ.EscapeString(version)+`</footer>`)
		return err
	})
}
