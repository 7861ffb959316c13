package schemas

// ElementSummary is the compact element descriptor returned by find-like
// actions. Index is stable within one observation so the model can act on
// "element 3" in the following turn without re-querying.
type ElementSummary struct {
	Index int    `json:"i"`
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Text  string `json:"text,omitempty"`
}

// ToolObservation is the structured result of executing one Action.
type ToolObservation struct {
	OK      bool   `json:"ok"`
	Data    Args   `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Failure builds a failed observation with a message.
func Failure(message string) ToolObservation {
	return ToolObservation{OK: false, Message: message}
}

// Success builds a successful observation carrying optional structured data.
func Success(data Args) ToolObservation {
	return ToolObservation{OK: true, Data: data}
}

// Elements decodes the "elements" result list, when present.
func (o ToolObservation) Elements() []ElementSummary {
	arr, ok := o.Data.Arr("elements")
	if !ok {
		return nil
	}
	out := make([]ElementSummary, 0, len(arr))
	for i, v := range arr {
		obj, ok := v.Obj()
		if !ok {
			continue
		}
		es := ElementSummary{Index: i}
		if n, ok := obj["i"].Int(); ok {
			es.Index = n
		}
		es.Role = obj["role"].StringOr("")
		es.Name = obj["name"].StringOr("")
		es.Text = obj["text"].StringOr("")
		out = append(out, es)
	}
	return out
}

// Count returns the "count" result, falling back to the element list length.
func (o ToolObservation) Count() int {
	if n, ok := o.Data.Int("count"); ok {
		return n
	}
	return len(o.Elements())
}

// FocusSummary describes the currently focused element, when one exists.
type FocusSummary struct {
	Role      string `json:"role,omitempty"`
	Name      string `json:"name,omitempty"`
	IsVisible bool   `json:"isVisible"`
}

// PageContext is the snapshot of the live page an observation is built from.
type PageContext struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	TextExcerpt string `json:"textExcerpt,omitempty"`
}
