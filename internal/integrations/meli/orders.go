package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Order struct {
	ID          json.Number `json:"id"`
	Status      string      `json:"status"`
	DateCreated string      `json:"date_created"`

	PackID json.Number `json:"pack_id"`
	Pack   struct {
		ID json.Number `json:"id"`
	} `json:"pack"`

	Shipping struct {
		ID json.Number `json:"id"`
	} `json:"shipping"`

	OrderItems []OrderItem `json:"order_items"`
	Payments   []Payment   `json:"payments"`
}

type OrderItem struct {
	Item struct {
		ID                string `json:"id"`
		Title             string `json:"title"`
		SellerSKU         string `json:"seller_sku"`
		SellerCustomField string `json:"seller_custom_field"`
	} `json:"item"`
	Quantity int32 `json:"quantity"`
}

type Payment struct {
	Status string `json:"status"`
}

type OrdersPage struct {
	Results []Order `json:"results"`
	Paging  struct {
		Total  int `json:"total"`
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	} `json:"paging"`
}

// PackIDValue resolves pack_id with the nested pack.id compat fallback.
func (o *Order) PackIDValue() string {
	if s := o.PackID.String(); s != "" && s != "0" {
		return s
	}
	if s := o.Pack.ID.String(); s != "" && s != "0" {
		return s
	}
	return ""
}

// PaymentStatus prefers the first payment's status over the order status.
func (o *Order) PaymentStatus() string {
	if len(o.Payments) > 0 && o.Payments[0].Status != "" {
		return o.Payments[0].Status
	}
	return o.Status
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var ord Order
	if err := c.getJSON(ctx, "/orders/"+url.PathEscape(orderID), reqOpts{}, &ord); err != nil {
		return nil, err
	}
	return &ord, nil
}

// SearchOrders pages the seller's orders inside a date window, newest first.
func (c *Client) SearchOrders(ctx context.Context, sellerID int64, from, to time.Time, limit, offset int) (*OrdersPage, error) {
	q := url.Values{
		"seller":                  {fmt.Sprintf("%d", sellerID)},
		"order.date_created.from": {from.UTC().Format("2006-01-02T15:04:05.000-00:00")},
		"order.date_created.to":   {to.UTC().Format("2006-01-02T15:04:05.000-00:00")},
		"sort":                    {"date_desc"},
		"limit":                   {fmt.Sprintf("%d", limit)},
		"offset":                  {fmt.Sprintf("%d", offset)},
	}
	var page OrdersPage
	if err := c.getJSON(ctx, "/orders/search", reqOpts{query: q}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Las asignaciones FBC viajan como nota de la orden.
var assignmentCodeRe = regexp.MustCompile(`(?i)\bFBC[0-9A-Z]{3,}\b`)

type orderNote struct {
	ID   json.Number `json:"id"`
	Note string      `json:"note"`

	Text        string `json:"text"`
	PlainText   string `json:"plain_text"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func (n orderNote) textValue() string {
	for _, s := range []string{n.Note, n.Text, n.PlainText, n.Description, n.Message} {
		if s != "" {
			return s
		}
	}
	return ""
}

type orderNotesEntry struct {
	Results []orderNote `json:"results"`
}

// decodeNotes accepts both wire shapes of GET /orders/{id}/notes: a list of
// {results:[...]} entries or a single such object.
func decodeNotes(raw json.RawMessage) []orderNote {
	var asList []orderNotesEntry
	if json.Unmarshal(raw, &asList) == nil {
		var out []orderNote
		for _, e := range asList {
			out = append(out, e.Results...)
		}
		return out
	}
	var asObj orderNotesEntry
	if json.Unmarshal(raw, &asObj) == nil {
		return asObj.Results
	}
	return nil
}

// OrderNote returns the assignment code for an order: last note text,
// uppercased; when there is no note, an FBC code anywhere in the raw order
// payload counts. Empty string means "no assignment", not an error.
func (c *Client) OrderNote(ctx context.Context, orderID string) (string, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/orders/"+url.PathEscape(orderID)+"/notes", reqOpts{}, &raw); err == nil {
		notes := decodeNotes(raw)
		if len(notes) > 0 {
			if txt := notes[len(notes)-1].textValue(); txt != "" {
				return strings.ToUpper(strings.TrimSpace(txt)), nil
			}
		}
	}

	var rawOrder json.RawMessage
	if err := c.getJSON(ctx, "/orders/"+url.PathEscape(orderID), reqOpts{}, &rawOrder); err != nil {
		return "", err
	}
	if m := assignmentCodeRe.Find(rawOrder); m != nil {
		return strings.ToUpper(string(m)), nil
	}
	return "", nil
}

// UpsertOrderNote creates the order note or updates the last existing one.
func (c *Client) UpsertOrderNote(ctx context.Context, orderID, text string) error {
	var noteID string
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/orders/"+url.PathEscape(orderID)+"/notes", reqOpts{}, &raw); err == nil {
		notes := decodeNotes(raw)
		if len(notes) > 0 {
			noteID = notes[len(notes)-1].ID.String()
		}
	}

	method := http.MethodPost
	path := "/orders/" + url.PathEscape(orderID) + "/notes"
	if noteID != "" && noteID != "0" {
		method = http.MethodPut
		path = path + "/" + url.PathEscape(noteID)
	}

	resp, err := c.do(ctx, method, path, reqOpts{jsonBody: map[string]string{"note": text}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.Errorf("note upsert rejected: http %d", resp.StatusCode)
	}
	return nil
}

type itemResponse struct {
	Thumbnail string `json:"thumbnail"`
	Pictures  []struct {
		URL       string `json:"url"`
		SecureURL string `json:"secure_url"`
	} `json:"pictures"`
}

// ItemPicture returns the first picture URL of a listing, thumbnail fallback.
func (c *Client) ItemPicture(ctx context.Context, itemID string) (string, error) {
	if itemID == "" {
		return "", nil
	}
	var it itemResponse
	if err := c.getJSON(ctx, "/items/"+url.PathEscape(itemID), reqOpts{}, &it); err != nil {
		return "", err
	}
	if len(it.Pictures) > 0 {
		if it.Pictures[0].SecureURL != "" {
			return it.Pictures[0].SecureURL, nil
		}
		if it.Pictures[0].URL != "" {
			return it.Pictures[0].URL, nil
		}
	}
	return it.Thumbnail, nil
}
