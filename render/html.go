package render

import (
	"html/template"
	"io"

	"crm-clients/models"
	"crm-clients/validation"
)

// PageForm is the form state shown above the list.
type PageForm struct {
	Editing   bool
	ID        uint
	Name      string
	Email     string
	Phone     string
	Type      models.ClientType
	Valid     map[string]bool
	CanSubmit bool
}

type PageNotice struct {
	Message  string
	Severity string
}

type Page struct {
	Form    PageForm
	Query   string
	List    View
	Notices []PageNotice
}

var clientTypes = []models.ClientType{models.TypeRegular, models.TypeNuevo, models.TypeVIP}

var templates = template.Must(template.New("list").Funcs(template.FuncMap{
	"rows":  Rows,
	"types": func() []models.ClientType { return clientTypes },
	"fieldClass": func(valid map[string]bool, field string) string {
		v, ok := valid[field]
		switch {
		case !ok:
			return ""
		case v:
			return "valid"
		default:
			return "invalid"
		}
	},
	"empty":    func() string { return EmptyMessage },
	"patterns": validation.Patterns,
}).Parse(listTemplate))

func init() {
	template.Must(templates.New("page").Parse(pageTemplate))
}

// HTML draws the list as an HTML fragment, or a full page via RenderPage.
type HTML struct{}

func (HTML) Render(w io.Writer, v View) error {
	return templates.ExecuteTemplate(w, "list", v)
}

func (HTML) RenderPage(w io.Writer, p Page) error {
	return templates.ExecuteTemplate(w, "page", p)
}

const listTemplate = `<section id="clients">
<h2>Clients <span id="count-badge">{{.Count}}</span></h2>
{{- if eq .Count 0}}
<p class="empty">{{empty}}</p>
{{- else}}
<ul id="client-list">
{{- range rows .}}
<li>
  <div><strong>{{.Name}}</strong> <span class="badge {{.Type}}">{{.Label}}</span><br>
  <small>{{.Email}} | {{.Phone}}</small></div>
  <div class="actions">
    <form method="post" action="/ui/edit/{{.ID}}"><button class="edit">Edit</button></form>
    <form method="post" action="/ui/delete/{{.ID}}" onsubmit="this.confirm.value = window.confirm('Delete this client permanently?')">
      <input type="hidden" name="confirm" value="false"><button class="delete">Delete</button>
    </form>
  </div>
</li>
{{- end}}
</ul>
{{- end}}
</section>`

const pageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>CRM</title></head>
<body>
<div id="toast-container">
{{- range .Notices}}<div class="toast {{.Severity}}"><span>{{.Message}}</span></div>{{end}}
</div>
<form id="client-form" method="post" action="/ui/submit">
  <input type="hidden" name="id" value="{{if .Form.Editing}}{{.Form.ID}}{{end}}">
  <input name="name" value="{{.Form.Name}}" class="{{fieldClass .Form.Valid "name"}}" required>
  <input name="email" value="{{.Form.Email}}" class="{{fieldClass .Form.Valid "email"}}" required>
  <input name="phone" value="{{.Form.Phone}}" class="{{fieldClass .Form.Valid "phone"}}" required>
  <select name="type">
  {{- $current := .Form.Type}}
  {{- range types}}<option value="{{.}}"{{if eq . $current}} selected{{end}}>{{.Label}}</option>{{end}}
  </select>
  <button id="add-btn"{{if not .Form.CanSubmit}} disabled{{end}}>{{if .Form.Editing}}Update{{else}}Save Client{{end}}</button>
</form>
{{- if .Form.Editing}}
<form method="post" action="/ui/cancel"><button id="cancel-btn">Cancel</button></form>
{{- end}}
<form method="get" action="/"><input id="search-input" name="q" value="{{.Query}}"></form>
{{template "list" .List}}
<script>
(function () {
  var patterns = {{patterns}};
  var form = document.getElementById('client-form');
  var btn = document.getElementById('add-btn');
  var status = {};
  var refresh = function () {
    btn.disabled = !Object.keys(patterns).every(function (n) { return status[n]; });
  };
  Object.keys(patterns).forEach(function (name) {
    var re = new RegExp(patterns[name], 'u');
    var input = form.elements[name];
    var check = function () {
      var ok = re.test(input.value.trim());
      status[name] = ok;
      input.classList.toggle('valid', ok);
      input.classList.toggle('invalid', !ok);
      refresh();
    };
    status[name] = re.test(input.value.trim());
    input.addEventListener('input', check);
    input.addEventListener('blur', check);
  });
  refresh();
})();
</script>
</body>
</html>`
