package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"html"
	"path"
	"runtime"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
)

const (
	indexFile       = "index.htm"
	titleClass      = "views-field-title"
	addressClass    = "views-field-field-building-address"
	numberClass     = "views-field-field-room-number"
	capacityClass   = "views-field-field-room-capacity"
	furnitureClass  = "views-field-field-room-furniture"
	roomTypeClass   = "views-field-field-room-type"
)

type buildingStub struct {
	FullName  string
	ShortName string
	Address   string
	Href      string
}

// Rooms decodes, unzips, and parses a Rooms archive (a scraped HTML
// site) into a model.Dataset with the given id. geocoder resolves each
// building's street address to a lat/lon; a building whose address
// fails to geocode is silently skipped, per spec.md §4.4.
func Rooms(ctx context.Context, id string, payloadBase64 string, geocoder Geocoder, concurrency int) (*model.Dataset, error) {
	raw, err := base64.StdEncoding.DecodeString(payloadBase64)
	if err != nil {
		return nil, cerrors.InvalidContentf("malformed base64 payload: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, cerrors.InvalidContentf("not a valid zip archive: %v", err)
	}
	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[f.Name] = f
	}

	idx, ok := byName[indexFile]
	if !ok {
		return nil, cerrors.InvalidContentf("archive missing %s at root", indexFile)
	}

	stubs, err := parseBuildingIndex(idx)
	if err != nil {
		return nil, err
	}

	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	results := make([][]model.Room, len(stubs))
	g, _ := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, stub := range stubs {
		i, stub := i, stub
		g.Go(func() error {
			lat, lon, err := geocoder.Geocode(ctx, stub.Address)
			if err != nil {
				return nil // skip: ungeocodable building contributes zero rooms
			}
			f, ok := byName[strings.TrimPrefix(path.Clean(stub.Href), "/")]
			if !ok {
				return nil // skip: building page absent from archive
			}
			rooms, err := parseRoomTable(f, stub, lat, lon)
			if err != nil {
				return err
			}
			results[i] = rooms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []model.Room
	for _, r := range results {
		rows = append(rows, r...)
	}
	if len(rows) == 0 {
		return nil, cerrors.InvalidContent("archive produced zero rooms")
	}

	return &model.Dataset{ID: id, Kind: model.KindRooms, Rooms: rows}, nil
}

// parseBuildingIndex finds the building table and extracts one stub per row.
func parseBuildingIndex(f *zip.File) ([]buildingStub, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, cerrors.InvalidContentf("open %s: %v", indexFile, err)
	}
	defer rc.Close()

	doc, err := goquery.NewDocumentFromReader(rc)
	if err != nil {
		return nil, cerrors.InvalidContentf("parse %s: %v", indexFile, err)
	}

	table := findTableWithClasses(doc, titleClass, addressClass)
	if table == nil {
		return nil, cerrors.InvalidContent("index.htm has no building table")
	}

	var stubs []buildingStub
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		titleCell := findCellWithClass(row, titleClass)
		addressCell := findCellWithClass(row, addressClass)
		if titleCell == nil || addressCell == nil {
			return
		}
		anchor := titleCell.Find("a").First()
		href, _ := anchor.Attr("href")
		fullName := strings.TrimSpace(anchor.Text())
		address := strings.TrimSpace(addressCell.Text())
		if fullName == "" || address == "" || href == "" {
			return
		}
		base := path.Base(href)
		shortName := strings.TrimSuffix(base, path.Ext(base))

		stubs = append(stubs, buildingStub{
			FullName:  fullName,
			ShortName: shortName,
			Address:   address,
			Href:      href,
		})
	})
	return stubs, nil
}

// parseRoomTable finds the room table in a building page and extracts
// one Room per body row; rows missing required fields are skipped.
func parseRoomTable(f *zip.File, stub buildingStub, lat, lon float64) ([]model.Room, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, cerrors.InvalidContentf("open %s: %v", f.Name, err)
	}
	defer rc.Close()

	doc, err := goquery.NewDocumentFromReader(rc)
	if err != nil {
		return nil, cerrors.InvalidContentf("parse %s: %v", f.Name, err)
	}

	table := findTableWithHeaderClasses(doc, numberClass, capacityClass, furnitureClass, roomTypeClass)
	if table == nil {
		return nil, nil // absent room table contributes zero rooms, not an error
	}

	var rooms []model.Room
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		numberCell := findCellWithClass(row, numberClass)
		capacityCell := findCellWithClass(row, capacityClass)
		furnitureCell := findCellWithClass(row, furnitureClass)
		typeCell := findCellWithClass(row, roomTypeClass)
		if numberCell == nil || capacityCell == nil || furnitureCell == nil || typeCell == nil {
			return
		}

		numberAnchor := numberCell.Find("a").First()
		number := strings.TrimSpace(unescapeAmp(numberAnchor.Text()))
		href, _ := numberAnchor.Attr("href")
		if number == "" {
			return
		}

		capacityText := strings.TrimSpace(unescapeAmp(capacityCell.Text()))
		seats, err := strconv.Atoi(capacityText)
		if err != nil {
			return
		}

		furniture := strings.TrimSpace(unescapeAmp(furnitureCell.Text()))
		roomType := strings.TrimSpace(unescapeAmp(typeCell.Text()))
		if furniture == "" || roomType == "" {
			return
		}

		rooms = append(rooms, model.Room{
			FullName:  stub.FullName,
			ShortName: stub.ShortName,
			Number:    number,
			Name:      stub.ShortName + "_" + number,
			Address:   stub.Address,
			Lat:       lat,
			Lon:       lon,
			Seats:     seats,
			Type:      roomType,
			Furniture: furniture,
			Href:      href,
		})
	})
	return rooms, nil
}

func unescapeAmp(s string) string {
	return html.UnescapeString(s)
}

// findTableWithClasses returns the first table whose body contains a
// cell carrying every one of wantClasses somewhere in its class list.
// Used for the building-index table, whose rows carry classes on the
// td body cells rather than on a th header row.
func findTableWithClasses(doc *goquery.Document, wantClasses ...string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if hasAllClasses(table, wantClasses...) {
			sel := table
			found = sel
			return false
		}
		return true
	})
	return found
}

func hasAllClasses(table *goquery.Selection, wantClasses ...string) bool {
	for _, want := range wantClasses {
		if findCellWithClass(table, want) == nil {
			return false
		}
	}
	return true
}

// findTableWithHeaderClasses returns the first table whose th header
// row carries every one of wantClasses. Used for the per-building room
// table, whose field classes live on the header cells.
func findTableWithHeaderClasses(doc *goquery.Document, wantClasses ...string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if hasAllHeaderClasses(table, wantClasses...) {
			found = table
			return false
		}
		return true
	})
	return found
}

func hasAllHeaderClasses(table *goquery.Selection, wantClasses ...string) bool {
	for _, want := range wantClasses {
		if findHeaderCellWithClass(table, want) == nil {
			return false
		}
	}
	return true
}

func findCellWithClass(scope *goquery.Selection, class string) *goquery.Selection {
	sel := scope.Find("td." + class).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel
}

func findHeaderCellWithClass(scope *goquery.Selection, class string) *goquery.Selection {
	sel := scope.Find("th." + class).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel
}
