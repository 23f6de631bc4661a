package http

import nethttp "net/http"

func dashboardHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.URL.Path != "/" {
		nethttp.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write([]byte(dashboardHTML))
}

func faviconHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusNoContent)
}

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>File Size Analysis</title>
  <style>
    :root {
      --accent: rgb(100, 44, 145);
      --bg: #f7f7f7;
      --paper: #fff;
      --text: #333;
      --muted: #777;
      --line: #ddd;
    }
    body { margin: 0; font-family: "Open Sans", Arial, sans-serif; background: var(--bg); color: var(--text); }
    header { background: var(--accent); color: #fff; padding: 12px 24px; font-size: 18px; }
    main { padding: 16px 24px; }
    section { background: var(--paper); border: 1px solid var(--line); border-radius: 4px; padding: 12px 16px; margin-bottom: 16px; }
    table { border-collapse: collapse; width: 100%; }
    th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--line); font-size: 13px; }
    .muted { color: var(--muted); }
    .bars img { max-width: 100%; margin: 8px 0; border: 1px solid var(--line); }
    .legend li { list-style: none; }
    .bullet { color: var(--accent); margin-right: 6px; }
    button { background: var(--accent); color: #fff; border: 0; padding: 6px 12px; border-radius: 3px; cursor: pointer; }
    input[type=text] { width: 360px; padding: 5px; }
  </style>
</head>
<body>
  <header>File Size Analysis</header>
  <main>
    <section>
      <form id="start-form">
        <input type="text" id="source" placeholder="/path/to/share" />
        <button type="submit">Run analysis</button>
        <span id="start-status" class="muted"></span>
      </form>
    </section>
    <section>
      <h3>Analysis jobs</h3>
      <table>
        <thead><tr><th>Source</th><th>State</th><th>Files</th><th>Size</th><th>Finished</th><th></th></tr></thead>
        <tbody id="jobs"></tbody>
      </table>
    </section>
    <section id="report" hidden>
      <h3 id="report-title"></h3>
      <div id="legends"></div>
      <div class="bars" id="bars"></div>
    </section>
  </main>
  <script>
    const sizes = ["Bytes", "KB", "MB", "GB", "TB"];
    function bytesToSize(bytes) {
      if (!bytes) { return "n/a"; }
      const i = Math.min(Math.floor(Math.log(bytes) / Math.log(1024)), sizes.length - 1);
      return i === 0 ? bytes + " Bytes" : (bytes / Math.pow(1024, i)).toFixed(1) + " " + sizes[i];
    }
    function esc(s) {
      return String(s).replace(/[&<>"]/g, c => ({"&": "&amp;", "<": "&lt;", ">": "&gt;", '"': "&quot;"}[c]));
    }

    async function loadJobs() {
      const res = await fetch("/api/v1/analysis/jobs?limit=25");
      const body = await res.json();
      const rows = (body.data || []).map(j =>
        "<tr><td>" + esc(j.source) + "</td><td>" + esc(j.state) + "</td><td>" + j.files +
        "</td><td>" + bytesToSize(j.total_bytes) + "</td><td class=\"muted\">" + esc(j.finished_at || "") +
        "</td><td>" + (j.state === "finished" ? "<a href=\"#\" data-job=\"" + esc(j.id) + "\">charts</a>" : "") + "</td></tr>");
      document.getElementById("jobs").innerHTML = rows.join("") || "<tr><td colspan=\"6\" class=\"muted\">No jobs yet</td></tr>";
    }

    async function showReport(id) {
      const res = await fetch("/api/v1/analysis/jobs/" + encodeURIComponent(id) + "/charts");
      const body = await res.json();
      if (!res.ok) { alert(body.error); return; }
      const report = body.data;
      document.getElementById("report").hidden = false;
      document.getElementById("report-title").textContent = body.meta.job.source;
      document.getElementById("legends").innerHTML = (report.pies || []).map(p =>
        "<h4>" + esc(p.title) + "</h4><ul class=\"legend\">" + (report.legends[p.name] || []).map(e =>
          "<li><span class=\"bullet\">&#8226;</span>" + esc(e.label) + " " + esc(e.percentage) + "</li>").join("") + "</ul>").join("");
      document.getElementById("bars").innerHTML = (report.bars || []).map((b, i) =>
        "<img alt=\"" + esc(b.title) + "\" src=\"/api/v1/analysis/jobs/" + encodeURIComponent(id) + "/bars/" + (i + 1) + ".png\" />").join("");
    }

    document.getElementById("jobs").addEventListener("click", ev => {
      const id = ev.target.getAttribute("data-job");
      if (id) { ev.preventDefault(); showReport(id); }
    });

    document.getElementById("start-form").addEventListener("submit", async ev => {
      ev.preventDefault();
      const status = document.getElementById("start-status");
      const res = await fetch("/api/v1/analysis/jobs", {
        method: "POST",
        headers: {"Content-Type": "application/json"},
        body: JSON.stringify({source: document.getElementById("source").value})
      });
      const body = await res.json();
      status.textContent = res.ok ? "started " + body.data.id : body.error;
      loadJobs();
    });

    loadJobs();
    setInterval(loadJobs, 10000);
  </script>
</body>
</html>
`
