package server

import (
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/RTnhN/boolbin/internal/store"
)

var indexTmpl = template.Must(template.New("index").Parse(`<h1>Keys Generated</h1>
<p><strong>Write key:</strong> <a href="/write/{{.WriteKey}}">{{.WriteKey}}</a></p>
<p><strong>Read key:</strong> <a href="/read/{{.ReadKey}}">{{.ReadKey}}</a></p>

<h2>How to Use This Database</h2>
<p>One boolean value per cell, addressed by two unguessable keys: the write key updates it, the read key only observes it.</p>

<h3>Write Operation</h3>
<p>To update the boolean value, make a GET request with the write key and the <code>bit</code> query parameter:</p>
<pre>GET {{.BaseURL}}/write/{{.WriteKey}}?bit=true</pre>
<p>Use <code>bit=false</code> to set it back. Each write refreshes the expiration timer.</p>

<h3>Gravity</h3>
<p>Add <code>gravity=SECONDS</code> to a write to arm a decay timer that pulls the bit back to <strong>false</strong> after that many seconds, unless a later write re-arms it:</p>
<pre>GET {{.BaseURL}}/write/{{.WriteKey}}?bit=true&amp;gravity=300</pre>
<p><code>gravity=0</code> disarms the timer. A write without a <code>gravity</code> parameter leaves the timer as it was.</p>

<h3>Read Operation</h3>
<p>To read the current boolean value, visit the read key endpoint:</p>
<pre>GET {{.BaseURL}}/read/{{.ReadKey}}</pre>
<p>The response is a JSON object:</p>
<pre>{ "bit": true }</pre>

<h3>Expiration</h3>
<p>Key pairs automatically expire after {{.IdleDays}} days without a write.</p>

<h3>Error Handling</h3>
<p>An unknown key yields a 404 with a JSON message:</p>
<pre>{ "error": "invalid read key" }</pre>

<h3>Example Usage with Curl</h3>
<p>Write (set to true):</p>
<pre>curl "{{.BaseURL}}/write/{{.WriteKey}}?bit=true"</pre>
<p>Read current value:</p>
<pre>curl "{{.BaseURL}}/read/{{.ReadKey}}"</pre>

<h3>Database info</h3>
<p>Every key is random, so nothing ties a cell to anything meaningful. That lets us open the database — you can browse all stored cells here:</p>
<pre>{{.BaseURL}}/all</pre>

<p><em>Refresh this page to generate a new key pair.</em></p>
`))

var allTmpl = template.Must(template.New("all").Parse(`<h1>All Cells</h1>
<table border="1">
	<tr>
		<th>Read Key</th>
		<th>State (Bit)</th>
		<th>Gravity</th>
	</tr>
{{range .Cells}}	<tr>
		<td>{{.ReadKey}}</td>
		<td>{{.Bit}}</td>
		<td>{{if .GravityEnabled}}expires {{.Expires}}{{else}}off{{end}}</td>
	</tr>
{{end}}</table>
`))

// handleIndex creates a fresh cell (after the opportunistic idle sweep) and
// renders the usage page around its key pair.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	cell, err := s.createCell()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		WriteKey string
		ReadKey  string
		BaseURL  string
		IdleDays int
	}{
		WriteKey: cell.WriteKey,
		ReadKey:  cell.ReadKey,
		BaseURL:  "http://" + r.Host,
		IdleDays: int(s.idleTTL.Hours() / 24),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("render index: %v", err)
	}
}

// handleAllPage renders the stored state of every cell as an HTML table.
// Same stale-view caveat as the JSON enumeration.
func (s *Server) handleAllPage(w http.ResponseWriter, r *http.Request) {
	cells, err := s.db.ListCells()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type row struct {
		store.CellSnapshot
		Expires string
	}
	rows := make([]row, len(cells))
	for i, c := range cells {
		rows[i].CellSnapshot = c
		if c.GravityExpiresAt != nil {
			rows[i].Expires = time.UnixMilli(*c.GravityExpiresAt).Format("2006-01-02 15:04:05")
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := allTmpl.Execute(w, struct{ Cells []row }{rows}); err != nil {
		log.Printf("render all: %v", err)
	}
}
