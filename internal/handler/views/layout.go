package views

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/pavelanni/veripop/internal/i18n"
	"github.com/pavelanni/veripop/internal/model"
)

const styles = `
*{box-sizing:border-box}
body{margin:0;display:flex;min-height:100vh;background:#020617;color:#f1f5f9;font-family:system-ui,sans-serif}
a{color:inherit}
.sidebar{width:18rem;background:#0f172a;border-right:1px solid #1e293b;display:flex;flex-direction:column}
.brand{padding:1.5rem;border-bottom:1px solid #1e293b}
.brand h1{margin:0;font-size:1.5rem;font-weight:900}
.brand p,.footer{font-family:monospace;font-size:.75rem;color:#64748b}
.nav{flex:1;overflow-y:auto;padding:1rem}
.nav h3{font-size:.625rem;text-transform:uppercase;letter-spacing:.1em;color:#64748b;margin:1.5rem .5rem .75rem}
.nav a{display:block;padding:.6rem .75rem;border-radius:.5rem;text-decoration:none;color:#94a3b8;font-size:.875rem}
.nav a.active{background:#1e293b;color:#fff}
.footer{padding:1rem;border-top:1px solid #1e293b;text-align:center}
main{flex:1;display:flex;flex-direction:column;background:#0f172a}
header{display:flex;justify-content:space-between;align-items:center;padding:1rem 1.5rem;border-bottom:1px solid #334155}
.category{font-size:.75rem;font-weight:700;color:#FF6B97;text-transform:uppercase;letter-spacing:.1em}
header h2{margin:.25rem 0 0;font-size:1.75rem;font-weight:900}
.columns{display:grid;grid-template-columns:1fr 1fr;flex:1}
.theory{padding:2rem;border-right:1px solid #334155}
.theory section{margin-bottom:2.5rem}
.theory p{white-space:pre-line;line-height:1.6;color:#cbd5e1}
.sandbox{padding:2rem;background:#020617;display:flex;flex-direction:column;gap:1rem}
.diagram{width:100%;background:#0f172a;border-radius:1rem}
.editor{font-family:monospace;font-size:.875rem;background:#020617;border-radius:.75rem;overflow:hidden;outline:1px solid #1e293b}
.editor.readonly{opacity:.8}
.editor-bar{background:#0f172a;border-bottom:1px solid #1e293b;padding:.5rem 1rem;display:flex;gap:.75rem;font-size:.75rem;color:#64748b;font-weight:700}
.editor-bar .badge{margin-left:auto;background:#1e293b;padding:0 .5rem;border-radius:.25rem;font-size:.625rem}
.editor-body{display:flex}
.gutter{width:2.5rem;background:#0f172a;color:#475569;text-align:right;padding:1rem .75rem 0 0;line-height:1.5rem;font-size:.75rem;display:flex;flex-direction:column}
.editor textarea{flex:1;background:#020617;color:#cbd5e1;border:0;padding:1rem;line-height:1.5rem;font:inherit;resize:none;outline:none}
.feedback{padding:1rem;border-radius:.75rem;font-family:monospace;font-size:.875rem;white-space:pre-wrap}
.feedback.success{background:#064e3b33;color:#6ee7b7;border:1px solid #10b9814d}
.feedback.failure,.feedback.pending{background:#88133733;color:#fda4af;border:1px solid #f43f5e4d}
.tutor{background:#88133733;padding:1.5rem;border-radius:.75rem;border:1px solid #f43f5e4d;color:#fecdd3}
.actions{display:flex;justify-content:flex-end;gap:.75rem}
button{cursor:pointer;border-radius:.75rem;font-weight:700;padding:.75rem 1.5rem;border:1px solid #334155;background:#1e293b;color:#cbd5e1}
button.primary{background:#4ECDC4;color:#0f172a;border:0}
button.tutor-button{background:#f43f5e1a;color:#f43f5e;border-color:#f43f5e80}
button[disabled]{cursor:wait;opacity:.6}
.pager{display:flex;justify-content:space-between;padding:1rem 2rem;font-size:.875rem;color:#64748b}
`

// liveScript saves editor input as it is typed and reloads the page once a
// pending evaluation settles, after the last edit has been saved.
const liveScript = `(function(){
var el=document.currentScript;
var form=document.getElementById("editor");
var area=form&&form.elements.code;
var saved=area?area.value:"";
var timer;
function save(){
clearTimeout(timer);
if(!area||area.value===saved)return Promise.resolve();
var code=area.value,body=new URLSearchParams();
body.set("code",code);
return fetch(form.dataset.save,{method:"POST",credentials:"same-origin",
headers:{"Accept":"application/json","X-CSRF-Token":form.elements.csrf_token.value},body:body})
.then(function(){saved=code;},function(){});
}
if(area)area.addEventListener("input",function(){clearTimeout(timer);timer=setTimeout(save,400);});
var proto=location.protocol==="https:"?"wss:":"ws:";
var ws=new WebSocket(proto+"//"+location.host+el.dataset.ws);
ws.onmessage=function(ev){
var s=JSON.parse(ev.data);
if(s.verdict.kind!=="pending"&&s.explanation!=="pending"){ws.close();save().then(function(){location.reload();});}
};
})();`

// Layout wraps body in the page chrome. When live is set the page follows the
// session over a websocket, saving editor input, and reloads once pending work
// completes; a meta refresh covers clients without scripting.
func Layout(title string, live bool, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		h.raw(`<!DOCTYPE html><html><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		if live {
			h.raw(`<noscript><meta http-equiv="refresh" content="2"></noscript>`)
		}
		h.raw("<title>")
		h.text(title)
		h.raw(" · ")
		h.text(i18n.T(ctx, "AppTitle"))
		h.raw("</title><style>", styles, "</style></head><body>")
		h.render(body)
		if live {
			h.raw("<script")
			h.attr("data-ws", model.BasePathFromContext(ctx)+"/session/ws")
			h.raw(">", liveScript, "</script>")
		}
		h.raw("</body></html>")
		return h.err
	})
}
