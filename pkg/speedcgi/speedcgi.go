// Package speedcgi decodes the XML document served by the appliance's
// speed.cgi endpoint.
package speedcgi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Path is the absolute request path of the endpoint.
const Path = "/cgi-bin/speed.cgi"

const (
	elemReceived    = "rxb"
	elemTransmitted = "txb"
)

// Counters are the cumulative totals reported by the appliance.
type Counters struct {
	Received    int64
	Transmitted int64
}

// ParseCounters extracts the first rxb and txb elements found anywhere in the
// document.
func ParseCounters(body string) (Counters, error) {
	if strings.TrimSpace(body) == "" {
		return Counters{}, fmt.Errorf("empty document")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err != nil {
		return Counters{}, fmt.Errorf("parse xml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return Counters{}, fmt.Errorf("parse xml: no root element")
	}

	rx, err := intElement(root, elemReceived)
	if err != nil {
		return Counters{}, err
	}
	tx, err := intElement(root, elemTransmitted)
	if err != nil {
		return Counters{}, err
	}
	return Counters{Received: rx, Transmitted: tx}, nil
}

func intElement(root *etree.Element, tag string) (int64, error) {
	el := firstElement(root, tag)
	if el == nil {
		return 0, fmt.Errorf("element <%s> not found", tag)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(el.Text()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("element <%s>: %w", tag, err)
	}
	return v, nil
}

// firstElement returns the first element named tag in document order.
func firstElement(el *etree.Element, tag string) *etree.Element {
	if el.Tag == tag {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := firstElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}
