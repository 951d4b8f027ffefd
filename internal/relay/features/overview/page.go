package overview

import "html/template"

// datastarSrc is the browser runtime that drives the SSE updates.
const datastarSrc = "https://cdn.jsdelivr.net/gh/starfederation/datastar@v1.0.0/bundles/datastar.js"

var pageTmpl = template.Must(template.New("overview").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>LeapFlow PostHog Relay</title>
<script type="module" src="{{.DatastarSrc}}"></script>
<style>
body { font-family: ui-monospace, monospace; margin: 2rem auto; max-width: 48rem; color: #1d2d35; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #c5d0d6; padding: 0.4rem 0.9rem; text-align: right; }
th { background: #eef2f4; font-weight: 600; }
h1 { font-size: 1.3rem; }
h2 { font-size: 1rem; margin-top: 2rem; }
code { background: #eef2f4; padding: 0.1rem 0.3rem; }
</style>
</head>
<body>
<main data-on-load="@get('/updates')">
{{template "dashboard" .}}
</main>
</body>
</html>
{{define "dashboard"}}<section id="dashboard">
<h1>PostHog Relay</h1>
<p>connection <code>{{.ConnID}}</code> &middot; {{.Transforms}} transforms loaded &middot; {{.Inflight}} in flight</p>
<h2>Events</h2>
<table>
<tr><th>received</th><th>dropped</th><th>delivered</th><th>failed</th><th>spooled</th><th>replayed</th></tr>
<tr><td>{{.Stats.Received}}</td><td>{{.Stats.Dropped}}</td><td>{{.Stats.Delivered}}</td><td>{{.Stats.Failed}}</td><td>{{.Stats.Spooled}}</td><td>{{.Stats.Replayed}}</td></tr>
</table>
<h2>Spool</h2>
<table>
<tr><th>pending</th><th>replayed</th><th>dead</th><th>pending events</th></tr>
<tr><td>{{.Spool.Pending}}</td><td>{{.Spool.Replayed}}</td><td>{{.Spool.Dead}}</td><td>{{.Spool.PendingEvents}}</td></tr>
</table>
</section>{{end}}`))
