package model

// Room is one bookable campus room, extracted from a building's
// scraped HTML page. Rooms are immutable once ingested.
type Room struct {
	FullName  string // e.g. "Hugh Dempster Pavilion"
	ShortName string // e.g. "DMP"
	Number    string // not always numeric
	Name      string // ShortName + "_" + Number
	Address   string
	Lat       float64
	Lon       float64
	Seats     int
	Type      string
	Furniture string
	Href      string
}

// Field looks up a Rooms-kind field by its dataset-key suffix.
func (r Room) Field(name string) (interface{}, bool) {
	switch name {
	case "fullname":
		return r.FullName, true
	case "shortname":
		return r.ShortName, true
	case "number":
		return r.Number, true
	case "name":
		return r.Name, true
	case "address":
		return r.Address, true
	case "lat":
		return r.Lat, true
	case "lon":
		return r.Lon, true
	case "seats":
		return float64(r.Seats), true
	case "type":
		return r.Type, true
	case "furniture":
		return r.Furniture, true
	case "href":
		return r.Href, true
	default:
		return nil, false
	}
}

// RoomFields lists every valid Rooms dataset-key suffix.
var RoomFields = map[string]bool{
	"fullname": true, "shortname": true, "number": true, "name": true,
	"address": true, "lat": true, "lon": true, "seats": true,
	"type": true, "furniture": true, "href": true,
}

// RoomNumericFields lists the Rooms fields with numeric type.
var RoomNumericFields = map[string]bool{
	"lat": true, "lon": true, "seats": true,
}
