package web

import (
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"
)

type documentRow struct {
	ID         string
	URL        string
	Title      string
	Collection string
	Created    time.Time
}

func page(title string, body ...gomponents.Node) gomponents.Node {
	return html.Doctype(html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(gomponents.Text(title+" | statharvest")),
		),
		html.Body(
			html.Nav(
				html.A(html.Href("/"), gomponents.Text("Documents")),
				gomponents.Text(" · "),
				html.A(html.Href("/about/"), gomponents.Text("About")),
			),
			html.Main(
				html.H1(gomponents.Text(title)),
				gomponents.Group(body),
			),
		),
	))
}

func homePage(collection string, rows []documentRow) gomponents.Node {
	title := "Documents"
	if collection != "" {
		title = "Documents in " + collection
	}
	if len(rows) == 0 {
		return page(title, html.P(gomponents.Text("Nothing has been stored yet.")))
	}

	items := make([]gomponents.Node, 0, len(rows))
	for _, row := range rows {
		items = append(items, html.Tr(
			html.Td(html.A(html.Href(row.URL), gomponents.Text(row.Title))),
			html.Td(html.A(html.Href("/?collection="+url.QueryEscape(row.Collection)), gomponents.Text(row.Collection))),
			html.Td(
				html.Title(row.Created.Format(time.RFC3339)),
				gomponents.Text(humanize.Time(row.Created)),
			),
		))
	}
	return page(title, html.Table(
		html.THead(html.Tr(
			html.Th(gomponents.Text("Title")),
			html.Th(gomponents.Text("Collection")),
			html.Th(gomponents.Text("Stored")),
		)),
		html.TBody(gomponents.Group(items)),
	))
}

func aboutPage() gomponents.Node {
	return page("About",
		html.P(gomponents.Text(
			"statharvest walks the Statistics Sweden table hierarchy, fetches table metadata and data "+
				"and writes them to text reports. Harvest runs recorded with --record show up on the front page.",
		)),
	)
}

func notFoundPage(path string) gomponents.Node {
	return page("Not found", html.P(gomponents.Textf("Nothing lives at %s.", path)))
}

func errorPage(err error) gomponents.Node {
	return page("Something went wrong", html.Pre(gomponents.Text(err.Error())))
}
