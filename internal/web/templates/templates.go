// Package templates holds the HTML components of the web UI.
//
// Components are written in .templ files; the matching _templ.go files are
// generated by `templ generate` and must not be edited by hand.
package templates

//go:generate templ generate

import (
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/prepflow/internal/core"
	"github.com/JonMunkholm/prepflow/internal/job"
	"github.com/JonMunkholm/prepflow/internal/table"
)

// IndexData is everything the dashboard page shows.
type IndexData struct {
	Dataset string
	Job     job.Job
	// Table is nil until a run has produced a transformed table.
	Table *core.DiffPage
}

func datasetLabel(name string) string {
	if name == "" {
		return "no dataset loaded"
	}
	return name
}

func progressValue(j job.Job) string {
	return strconv.FormatFloat(j.Display, 'f', 1, 64)
}

func sortMarker(s table.SortState, col string) string {
	switch {
	case s.Column != col:
		return ""
	case s.Desc:
		return " ▼"
	default:
		return " ▲"
	}
}

func displayStart(p core.DiffPage) int {
	if p.TotalRows == 0 {
		return 0
	}
	return p.Start + 1
}

// pageHref links to the 0-based page index; the query parameter is 1-based.
func pageHref(index int, mode string) templ.SafeURL {
	return templ.URL("/?page=" + strconv.Itoa(index+1) + "&mode=" + mode)
}

const pageCSS = `body{font-family:system-ui,sans-serif;margin:2rem}
table.diff{border-collapse:collapse}
table.diff th,table.diff td{border:1px solid #ddd;padding:.25rem .5rem}
td.changed{background:#fff3bf}
progress.bar{width:20rem}
.error,.alert-error{color:#c92a2a}
.disabled{color:#aaa}
.pager a,.pager span{margin-right:.5rem}`

// progressScript refreshes the page once the SSE stream reports a
// terminal job.
const progressScript = `<script>
(function(){
  var el=document.getElementById("job");
  if(!el||["queued","pending","running"].indexOf(el.dataset.status)<0)return;
  var es=new EventSource("/api/run/progress");
  es.addEventListener("progress",function(e){
    var j=JSON.parse(e.data);
    el.querySelector(".bar").value=j.display_progress;
    el.querySelector(".progress").textContent=j.progress+"%";
    el.querySelector(".status").textContent=j.status;
  });
  es.addEventListener("complete",function(){es.close();location.reload();});
})();
</script>`
