package remedy

import "testing"

func TestExtractRemedyHeading(t *testing.T) {
	t.Parallel()

	html := []byte(`
	<html><body>
	  <h2>Hazard</h2>
	  <p>The toaster can overheat.</p>
	  <h2>Remedy</h2>
	  <p>Consumers should immediately unplug the toaster and contact Acme
	  for a full refund.</p>
	</body></html>`)

	got := ExtractRemedy(html)
	want := "Consumers should immediately unplug the toaster and contact Acme for a full refund."
	if got != want {
		t.Fatalf("ExtractRemedy = %q, want %q", got, want)
	}
}

func TestExtractRemedyBoldLabel(t *testing.T) {
	t.Parallel()

	html := []byte(`
	<html><body>
	  <p><strong>Remedy:</strong> Return the unit to any retail location for a replacement.</p>
	</body></html>`)

	got := ExtractRemedy(html)
	want := "Return the unit to any retail location for a replacement."
	if got != want {
		t.Fatalf("ExtractRemedy = %q, want %q", got, want)
	}
}

func TestExtractRemedyHeadingOutranksLabel(t *testing.T) {
	t.Parallel()

	html := []byte(`
	<html><body>
	  <h3>Remedy</h3>
	  <p>Refund.</p>
	  <p><b>Remedy:</b> Something else entirely.</p>
	</body></html>`)

	if got := ExtractRemedy(html); got != "Refund." {
		t.Fatalf("ExtractRemedy = %q, want %q", got, "Refund.")
	}
}

func TestExtractRemedyNone(t *testing.T) {
	t.Parallel()

	html := []byte(`<html><body><h2>Hazard</h2><p>Fire risk.</p></body></html>`)
	if got := ExtractRemedy(html); got != "" {
		t.Fatalf("expected empty remedy, got %q", got)
	}
}

func TestExtractRemedyBrokenMarkup(t *testing.T) {
	t.Parallel()

	if got := ExtractRemedy([]byte(`<h2>Remedy<p`)); got != "" {
		t.Fatalf("expected empty remedy for broken markup, got %q", got)
	}
}
