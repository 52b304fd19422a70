package spapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestPublishPriceListingsItems(t *testing.T) {
	var gotPath, gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		fmt.Fprint(w, `{"submissionId":"sub-42","status":"ACCEPTED"}`)
	})

	res := c.PublishPrice(context.Background(), "SKU-1", "ATVPDKIKX0DER", 80.75, MethodListingsItems)

	if !res.Success {
		t.Fatalf("publish failed: %s", res.Error)
	}
	if res.SubmissionID != "sub-42" {
		t.Errorf("SubmissionID = %s, want sub-42", res.SubmissionID)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if gotPath != "/listings/2021-08-01/items/"+testSellerID+"/SKU-1" {
		t.Errorf("path = %s", gotPath)
	}
	if res.DurationMs < 0 {
		t.Errorf("DurationMs = %d", res.DurationMs)
	}
}

func TestPublishPriceListingsRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"errors":[{"code":"InvalidInput"}]}`)
	})

	res := c.PublishPrice(context.Background(), "SKU-1", "ATVPDKIKX0DER", 80.75, MethodListingsItems)

	if res.Success {
		t.Fatal("rejected publish reported success")
	}
	if res.Error == "" {
		t.Error("rejected publish must carry an error")
	}
	if !strings.Contains(res.Response, "InvalidInput") {
		t.Errorf("Response = %q, want raw body preserved", res.Response)
	}
}

func TestPublishPriceFeedsNotImplemented(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("feeds publication must not reach the marketplace")
	})

	res := c.PublishPrice(context.Background(), "SKU-1", "ATVPDKIKX0DER", 80.75, MethodFeeds)

	if res.Success {
		t.Error("feeds publish reported success")
	}
	if !res.NotImplemented {
		t.Error("feeds result must be tagged NotImplemented")
	}
	if !strings.Contains(res.FeedXML, "SKU-1") || !strings.Contains(res.FeedXML, "AmazonEnvelope") {
		t.Errorf("feed document incomplete:\n%s", res.FeedXML)
	}
	if !strings.Contains(res.FeedXML, `currency="USD"`) {
		t.Errorf("feed document missing currency:\n%s", res.FeedXML)
	}
}

func TestPublishPriceUnknownMethod(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	res := c.PublishPrice(context.Background(), "SKU-1", "ATVPDKIKX0DER", 80.75, "carrier_pigeon")

	if res.Success || res.Error == "" {
		t.Errorf("unknown method must fail with an error, got %+v", res)
	}
}
