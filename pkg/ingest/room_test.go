package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	cerrors "github.com/logflow/coursedb/pkg/errors"
)

type fakeGeocoder struct {
	results map[string][2]float64
}

func (g *fakeGeocoder) Geocode(_ context.Context, address string) (float64, float64, error) {
	ll, ok := g.results[address]
	if !ok {
		return 0, 0, errors.New("no such address")
	}
	return ll[0], ll[1], nil
}

func buildRoomsArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, contents := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
		if _, err := w.Write([]byte(contents)); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

const indexHTML = `<html><body>
<table>
<tbody>
<tr>
  <td class="views-field views-field-title"><a href="/campus/buildings/ALRD.htm">Allard Hall</a></td>
  <td class="views-field views-field-field-building-address">1822 East Mall</td>
</tr>
</tbody>
</table>
</body></html>`

const buildingHTML = `<html><body>
<table>
<thead><tr>
  <th class="views-field-field-room-number">Number</th>
  <th class="views-field-field-room-capacity">Capacity</th>
  <th class="views-field-field-room-furniture">Furniture</th>
  <th class="views-field-field-room-type">Type</th>
</tr></thead>
<tbody>
<tr>
  <td class="views-field views-field-field-room-number"><a href="/campus/rooms/ALRD-105.htm">105</a></td>
  <td class="views-field views-field-field-room-capacity">94</td>
  <td class="views-field views-field-field-room-furniture">Classroom-Fixed Tables/Movable Chairs</td>
  <td class="views-field views-field-field-room-type">Tiered Large Group</td>
</tr>
</tbody>
</table>
</body></html>`

func TestRoomsHappyPath(t *testing.T) {
	payload := buildRoomsArchive(t, map[string]string{
		"index.htm":                   indexHTML,
		"campus/buildings/ALRD.htm":   buildingHTML,
	})
	geo := &fakeGeocoder{results: map[string][2]float64{"1822 East Mall": {49.26125, -123.24807}}}

	ds, err := Rooms(context.Background(), "rooms", payload, geo, 0)
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	if len(ds.Rooms) != 1 {
		t.Fatalf("got %d rooms, want 1", len(ds.Rooms))
	}
	r := ds.Rooms[0]
	if r.FullName != "Allard Hall" || r.ShortName != "ALRD" || r.Number != "105" || r.Seats != 94 {
		t.Errorf("unexpected room %+v", r)
	}
	if r.Name != "ALRD_105" {
		t.Errorf("Name = %q, want ALRD_105", r.Name)
	}
	if r.Lat != 49.26125 {
		t.Errorf("Lat = %v, want 49.26125", r.Lat)
	}
}

func TestRoomsMissingIndexIsInvalidContent(t *testing.T) {
	payload := buildRoomsArchive(t, map[string]string{"nope.htm": "<html></html>"})
	_, err := Rooms(context.Background(), "rooms", payload, &fakeGeocoder{}, 0)
	if cerrors.CodeOf(err) != cerrors.CodeInvalidContent {
		t.Fatalf("got code %s, want INVALID_CONTENT", cerrors.CodeOf(err))
	}
}

func TestRoomsSkipsUngeocodableBuilding(t *testing.T) {
	payload := buildRoomsArchive(t, map[string]string{
		"index.htm":                 indexHTML,
		"campus/buildings/ALRD.htm": buildingHTML,
	})
	geo := &fakeGeocoder{results: map[string][2]float64{}} // no addresses resolve

	_, err := Rooms(context.Background(), "rooms", payload, geo, 0)
	if cerrors.CodeOf(err) != cerrors.CodeInvalidContent {
		t.Fatalf("got code %s, want INVALID_CONTENT (zero rooms)", cerrors.CodeOf(err))
	}
}
