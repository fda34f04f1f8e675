package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineRecord is one cable installation. The `sheet` tag binds a field to its
// column in the primary tab: header, kind and optional historical spelling.
type LineRecord struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	Telephone   string    `gorm:"size:32;not null;uniqueIndex:idx_line_phone_date,priority:1" json:"telephone" sheet:"Number,phone"`
	InstallDate time.Time `gorm:"type:date;not null;uniqueIndex:idx_line_phone_date,priority:2" json:"install_date" sheet:"Date,date"`

	Dp           string `gorm:"size:64" json:"dp" sheet:"DP,text"`
	PowerDp      string `gorm:"size:32" json:"power_dp" sheet:"Power (DP),text"`
	PowerInbox   string `gorm:"size:32" json:"power_inbox" sheet:"Power (inbox),text"`
	CustomerName string `gorm:"size:255" json:"customer_name" sheet:"Name,text"`
	Address      string `gorm:"type:text" json:"address" sheet:"Address,text"`

	CableStart  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cable_start" sheet:"Cable Start,number"`
	CableMiddle decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cable_middle" sheet:"Cable Middle,number"`
	CableEnd    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cable_end" sheet:"Cable End,number"`
	F1          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"f1" sheet:"F1,number"`
	G1          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"g1" sheet:"G1,number"`
	Total       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total" sheet:"Total,number"`

	Retainers     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"retainers" sheet:"Retainers,number"`
	LHook         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"l_hook" sheet:"L-Hook,number"`
	NutBolt       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"nut_bolt" sheet:"Nut&Bolt,number"`
	TopBolt       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"top_bolt" sheet:"Top-Bolt,number"`
	CHook         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"c_hook" sheet:"C-Hook,number"`
	FiberRosette  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fiber_rosette" sheet:"Fiber-rosatte,number,alt=Fiber-rosette"`
	InternalWire  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"internal_wire" sheet:"Internal Wire,number"`
	SRosette      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"s_rosette" sheet:"S-Rosette,number"`
	Fac           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fac" sheet:"FAC,number"`
	Casing        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"casing" sheet:"Casing,number"`
	CTie          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"c_tie" sheet:"C-Tie,number"`
	CClip         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"c_clip" sheet:"C-Clip,number"`
	Conduit       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"conduit" sheet:"Conduit,number"`
	TagTie        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tag_tie" sheet:"Tag Tie,number"`
	Ont           string          `gorm:"size:64" json:"ont" sheet:"ONT,text"`
	VoiceTestNo   string          `gorm:"size:32" json:"voice_test_number" sheet:"Voice Test Number,text"`
	Stb           string          `gorm:"size:64" json:"stb" sheet:"STB,text"`
	Flexible      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"flexible" sheet:"Flexible,number"`
	Rj45          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rj45" sheet:"RJ 45,number"`
	Cat5          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cat5" sheet:"Cat 5,number"`
	Pole67        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pole_6_7" sheet:"Pole-6.7,number"`
	Pole56        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pole_5_6" sheet:"Pole-5.6,number"`
	ConcreteNail  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"concrete_nail" sheet:"Concrete nail,number"`
	RollPlug      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"roll_plug" sheet:"Roll Plug,number"`
	ScrewNail     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"screw_nail" sheet:"Screw Nail,number"`
	ScrewNailLong decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"screw_nail_1_1_2" sheet:"Screw Nail 1 1/2,number"`
	UClip         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"u_clip" sheet:"U-Clip,number"`
	Socket        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"socket" sheet:"Socket,number"`
	Bend          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"bend" sheet:"Bend,number"`
	Rj11          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rj11" sheet:"RJ 11,number"`
	Rj12          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rj12" sheet:"RJ 12,number"`

	Status LineStatus `gorm:"size:20;not null;default:completed" json:"status"`

	// Fed by the drum-assignment tab.
	DwDp       string          `gorm:"size:64" json:"dw_dp"`
	DwCHook    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"dw_c_hook"`
	DwCustomer string          `gorm:"size:255" json:"dw_customer"`
	DrumNumber string          `gorm:"size:64;index" json:"drum_number"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LineKey is the (telephone, date) identity of a LineRecord.
func LineKey(phone string, date time.Time) string {
	return phone + "|" + date.Format("2006-01-02")
}

func (l LineRecord) Key() string {
	return LineKey(l.Telephone, l.InstallDate)
}

// HasDrumOffsets reports whether the cable start and end readings describe a
// physical span on the drum. The store keeps a blank reading as zero, so a
// span touching offset 0 only counts when it accounts for the line total.
func (l LineRecord) HasDrumOffsets() bool {
	span := l.CableEnd.Sub(l.CableStart).Abs()
	if span.IsZero() {
		return false
	}
	if !l.CableStart.IsZero() && !l.CableEnd.IsZero() {
		return true
	}
	return span.Equal(l.Total)
}

// Task is the derived work item kept for every LineRecord.
type Task struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	LineRecordId uint       `gorm:"uniqueIndex;not null" json:"line_record_id"`
	Title        string     `gorm:"size:255" json:"title"`
	Status       TaskStatus `gorm:"size:20;not null;default:done" json:"status"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Task) TableName() string {
	return "line_tasks"
}
