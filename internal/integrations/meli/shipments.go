package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Shipment is the subset of GET /shipments/{id} (x-format-new) the label
// workflow inspects.
type Shipment struct {
	ID        json.Number `json:"id"`
	Status    string      `json:"status"`
	Substatus string      `json:"substatus"`

	Logistic struct {
		Mode string `json:"mode"`
		Type string `json:"type"`
	} `json:"logistic"`

	// Formato viejo: logistic_type plano.
	LogisticType string `json:"logistic_type"`

	LeadTime struct {
		Buffering struct {
			Date string `json:"date"`
		} `json:"buffering"`
	} `json:"lead_time"`
}

// LogisticTypeValue resolves the new-format field with old-format fallback.
func (s *Shipment) LogisticTypeValue() string {
	if s.Logistic.Type != "" {
		return s.Logistic.Type
	}
	return s.LogisticType
}

type packResponse struct {
	Shipment struct {
		ID json.Number `json:"id"`
	} `json:"shipment"`
}

type shipmentSearchResult struct {
	ID         json.Number `json:"id"`
	ShipmentID json.Number `json:"shipment_id"`
}

type shipmentSearchResponse struct {
	Results []shipmentSearchResult `json:"results"`
}

type userMeResponse struct {
	ID int64 `json:"id"`
}

// Me returns the seller id of the token's owner.
func (c *Client) Me(ctx context.Context) (int64, error) {
	var out userMeResponse
	if err := c.getJSON(ctx, "/users/me", reqOpts{}, &out); err != nil {
		return 0, err
	}
	if out.ID == 0 {
		return 0, ErrNotFound
	}
	return out.ID, nil
}

func (c *Client) GetShipment(ctx context.Context, shipmentID string) (*Shipment, error) {
	var sh Shipment
	err := c.getJSON(ctx, "/shipments/"+url.PathEscape(shipmentID), reqOpts{
		headers: map[string]string{"x-format-new": "true"},
	}, &sh)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// ShipmentIDFromPack resolves a pack id to its shipment id: /packs/{id}
// first, /shipments/search?pack= as fallback (seller-scoped when known).
func (c *Client) ShipmentIDFromPack(ctx context.Context, packID string, sellerID int64) (string, error) {
	var pr packResponse
	if err := c.getJSON(ctx, "/packs/"+url.PathEscape(packID), reqOpts{}, &pr); err == nil {
		if sid := pr.Shipment.ID.String(); sid != "" && sid != "0" {
			return sid, nil
		}
	}

	q := url.Values{"pack": {packID}}
	if sellerID != 0 {
		q.Set("seller", fmt.Sprintf("%d", sellerID))
	}
	return c.searchShipments(ctx, q)
}

// ShipmentIDFromOrder resolves an order id to its shipment id. Precedence:
// shipping.id on the order, then pack delegation, then shipment search with
// seller scoping, then without.
func (c *Client) ShipmentIDFromOrder(ctx context.Context, orderID string) (string, error) {
	var ord Order
	if err := c.getJSON(ctx, "/orders/"+url.PathEscape(orderID), reqOpts{}, &ord); err == nil {
		if sid := ord.Shipping.ID.String(); sid != "" && sid != "0" {
			return sid, nil
		}
		if packID := ord.PackIDValue(); packID != "" {
			sellerID, _ := c.Me(ctx)
			if sid, err := c.ShipmentIDFromPack(ctx, packID, sellerID); err == nil {
				return sid, nil
			}
		}
	}

	sellerID, _ := c.Me(ctx)
	q := url.Values{"order": {orderID}}
	if sellerID != 0 {
		q.Set("seller", fmt.Sprintf("%d", sellerID))
	}
	if sid, err := c.searchShipments(ctx, q); err == nil {
		return sid, nil
	}
	return c.searchShipments(ctx, url.Values{"order": {orderID}})
}

func (c *Client) searchShipments(ctx context.Context, q url.Values) (string, error) {
	var out shipmentSearchResponse
	err := c.getJSON(ctx, "/shipments/search", reqOpts{
		query:   q,
		headers: map[string]string{"x-format-new": "true"},
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Results) == 0 {
		return "", ErrNotFound
	}
	first := out.Results[0]
	if sid := first.ID.String(); sid != "" && sid != "0" {
		return sid, nil
	}
	if sid := first.ShipmentID.String(); sid != "" && sid != "0" {
		return sid, nil
	}
	return "", ErrNotFound
}

// ReadyToShip marks the shipment as "ya tengo el producto".
func (c *Client) ReadyToShip(ctx context.Context, shipmentID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/shipments/"+url.PathEscape(shipmentID)+"/process/ready_to_ship", reqOpts{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("ready_to_ship rejected: http %d", resp.StatusCode)
	}
	return nil
}
