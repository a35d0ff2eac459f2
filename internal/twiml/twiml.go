// Package twiml builds and parses the voice-markup documents returned to the
// telephony provider.
package twiml

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const ContentType = "text/xml; charset=utf-8"

// Node is one verb inside a <Response>.
type Node interface {
	Verb() string
}

type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type Play struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type Record struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr,omitempty"`
	Method    string   `xml:"method,attr,omitempty"`
	MaxLength int      `xml:"maxLength,attr,omitempty"`
	Timeout   int      `xml:"timeout,attr,omitempty"`
	PlayBeep  string   `xml:"playBeep,attr,omitempty"`
}

type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func (*Say) Verb() string      { return "Say" }
func (*Play) Verb() string     { return "Play" }
func (*Pause) Verb() string    { return "Pause" }
func (*Record) Verb() string   { return "Record" }
func (*Redirect) Verb() string { return "Redirect" }
func (*Hangup) Verb() string   { return "Hangup" }

// Response is the document root. Builder methods append verbs in order.
type Response struct {
	Children []Node
}

func New() *Response {
	return &Response{}
}

func (r *Response) Say(text string) *Response {
	r.Children = append(r.Children, &Say{Text: text})
	return r
}

func (r *Response) Pause(seconds int) *Response {
	r.Children = append(r.Children, &Pause{Length: seconds})
	return r
}

func (r *Response) Play(url string) *Response {
	r.Children = append(r.Children, &Play{URL: url})
	return r
}

// Record asks the provider to record up to maxSeconds and post the result to
// action. timeout is the trailing silence in seconds that ends the recording.
func (r *Response) Record(maxSeconds int, action string, timeout int) *Response {
	r.Children = append(r.Children, &Record{
		Action:    action,
		Method:    "POST",
		MaxLength: maxSeconds,
		Timeout:   timeout,
		PlayBeep:  "true",
	})
	return r
}

func (r *Response) Redirect(url string) *Response {
	r.Children = append(r.Children, &Redirect{Method: "POST", URL: url})
	return r
}

func (r *Response) Hangup() *Response {
	r.Children = append(r.Children, &Hangup{})
	return r
}

// Verbs lists the verb names in document order.
func (r *Response) Verbs() []string {
	out := make([]string, len(r.Children))
	for i, n := range r.Children {
		out[i] = n.Verb()
	}
	return out
}

func (r *Response) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start = xml.StartElement{Name: xml.Name{Local: "Response"}}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, n := range r.Children {
		if err := e.Encode(n); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func (r *Response) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	if start.Name.Local != "Response" {
		return fmt.Errorf("twiml: unexpected root <%s>", start.Name.Local)
	}
	r.Children = nil
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var n Node
			switch t.Name.Local {
			case "Say":
				n = &Say{}
			case "Play":
				n = &Play{}
			case "Pause":
				n = &Pause{}
			case "Record":
				n = &Record{}
			case "Redirect":
				n = &Redirect{}
			case "Hangup":
				n = &Hangup{}
			default:
				return fmt.Errorf("twiml: unsupported verb <%s>", t.Name.Local)
			}
			if err := d.DecodeElement(n, &t); err != nil {
				return err
			}
			r.Children = append(r.Children, n)
		case xml.EndElement:
			return nil
		}
	}
}

// Marshal renders the document with an XML declaration.
func (r *Response) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Response) String() string {
	b, err := r.Marshal()
	if err != nil {
		return fmt.Sprintf("<!-- %v -->", err)
	}
	return string(b)
}

func Parse(body []byte) (*Response, error) {
	var r Response
	if err := xml.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("twiml: %w", err)
	}
	return &r, nil
}
