package workload

import (
	mrand "math/rand"
	"time"
)

// SimpleRecord is a pair of independent random scalars.
type SimpleRecord struct {
	Value1 int `json:"value1"`
	Value2 int `json:"value2"`
}

// Shape implements Record.
func (SimpleRecord) Shape() Shape { return Simple }

// NewSimpleRecord draws a fresh pair of values. Two calls never share state,
// so the same index yields different values on every run.
func NewSimpleRecord() SimpleRecord {
	return SimpleRecord{
		Value1: mrand.Intn(201),
		Value2: mrand.Intn(1001),
	}
}

// IntegerArrays holds the two index-derived arrays of an IntermediateRecord.
type IntegerArrays struct {
	RandValues1 []int `json:"randValues1"`
	RandValues2 []int `json:"randValues2"`
}

// IntermediateRecord is a flat record with nested numeric arrays.
type IntermediateRecord struct {
	ID             string        `json:"id"`
	Color          string        `json:"color"`
	Size           int           `json:"size"`
	Owner          string        `json:"owner"`
	AppraisedValue int           `json:"appraisedValue"`
	IntegerArrays  IntegerArrays `json:"integerArrays"`
}

// Shape implements Record.
func (IntermediateRecord) Shape() Shape { return Intermediate }

type template struct {
	color          string
	size           int
	owner          string
	appraisedValue int
}

var catalog = []template{
	{"blue", 5, "Tomoko", 300},
	{"red", 5, "Brad", 400},
	{"green", 10, "Jin Soo", 500},
	{"yellow", 10, "Max", 600},
	{"black", 15, "Adriana", 700},
	{"white", 15, "Michel", 800},
}

// NewIntermediateRecord builds the n-th intermediate record from the
// template catalog.
func NewIntermediateRecord(n int) IntermediateRecord {
	tpl := catalog[n%len(catalog)]

	return IntermediateRecord{
		ID:             Key(Intermediate, n),
		Color:          tpl.color,
		Size:           tpl.size,
		Owner:          tpl.owner,
		AppraisedValue: tpl.appraisedValue,
		IntegerArrays: IntegerArrays{
			RandValues1: derivedArray(n, 1, 2),
			RandValues2: derivedArray(n, 3, 6),
		},
	}
}

func derivedArray(n, base, count int) []int {
	const delta = 1000

	out := make([]int, count)
	for k := range out {
		out[k] = (base+k)*delta + n + n%count
	}

	return out
}

// Law is a regulation referenced by a compliance declaration.
type Law struct {
	Titulo           string `json:"titulo"`
	Descripcion      string `json:"descripcion"`
	FechaIniVigencia int64  `json:"fechaIniVigencia"`
	RefDoc           string `json:"refDoc"`
	HashDoc          string `json:"hashDoc"`
}

// Declaration is a compliance declaration of an organization.
type Declaration struct {
	Titulo           string `json:"titulo"`
	Descripcion      string `json:"descripcion"`
	Estado           int    `json:"estado"`
	FechaIniVigencia int64  `json:"fechaIniVigencia"`
	FechaFinVigencia *int64 `json:"fechaFinVigencia"`
	RefDoc           string `json:"refDoc"`
	HashDoc          string `json:"hashDoc"`
	Leyes            []Law  `json:"leyes"`
}

// Product is a product listed by an organization.
type Product struct {
	Codigo      string `json:"codigo"`
	Nombre      string `json:"nombre"`
	Descripcion string `json:"descripcion"`
}

// Organization is the profile embedded in a ComplexRecord.
type Organization struct {
	Nombre                   string        `json:"nombre"`
	NombreComercial          string        `json:"nombreComercial"`
	Email                    string        `json:"email"`
	Telefono                 int           `json:"telefono"`
	Direccion                string        `json:"direccion"`
	Poblacion                string        `json:"poblacion"`
	Provincia                string        `json:"provincia"`
	Pais                     string        `json:"pais"`
	CP                       int           `json:"cp"`
	PublicCert               string        `json:"publicCert"`
	DeclaracionesConformidad []Declaration `json:"declaracionesConformidad"`
	Productos                []Product     `json:"productos"`
}

// ComplexRecord is a deeply nested organization document.
type ComplexRecord struct {
	OrgMspID string       `json:"orgMspId"`
	Empresa  Organization `json:"empresa"`
}

// Shape implements Record.
func (ComplexRecord) Shape() Shape { return Complex }

const defaultOrgMspID = "aimplas-notifierMSP"

// NewComplexRecord builds the complex document for id. Only the top-level
// identifier depends on the input; an empty id uses the default MSP name.
func NewComplexRecord(id string) ComplexRecord {
	if id == "" {
		id = defaultOrgMspID
	}

	return ComplexRecord{OrgMspID: id, Empresa: organization()}
}

// epochMillis converts a YYYY-MM-DD date at UTC midnight to epoch milliseconds.
func epochMillis(date string) int64 {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		panic(err)
	}

	return t.UnixMilli()
}

func epochMillisPtr(date string) *int64 {
	ms := epochMillis(date)

	return &ms
}

func organization() Organization {
	return Organization{
		Nombre:          "AIMPLAS",
		NombreComercial: "AIMPLAS - Instituto Tecnológico del Plástico",
		Email:           "aimplas@aimplas.es",
		Telefono:        961366040,
		Direccion:       "Calle Gustave Eiffel, 4",
		Poblacion:       "Paterna",
		Provincia:       "València",
		Pais:            "España",
		CP:              46980,
		PublicCert:      publicCert,
		DeclaracionesConformidad: []Declaration{
			{
				Titulo:           "DEC-A-2019-305",
				Descripcion:      "ASDF",
				Estado:           1,
				FechaIniVigencia: epochMillis("2019-12-17"),
				FechaFinVigencia: epochMillisPtr("2019-12-19"),
				RefDoc:           "first-compounderMSP/DEC-A-2019-305.pdf'",
				HashDoc:          "2YtfPIFz03zxbbsEkHcEroLgzf2LgzYTszKKstq0N0Ahq497vJ2N0nEGIONGIWebfJ6zaZWYqClwJu8Nnua0SPgAZiGwmw2BeJ25z6zz02BJF7BW6w3ndpPXp9QYATqC",
				Leyes: []Law{{
					Titulo:           "Reglamento 10/2011",
					Descripcion:      "Cambios en la concentración máxima permitida de [...]",
					FechaIniVigencia: epochMillis("2011-10-07"),
					RefDoc:           "https://www.boe.es/doue/2011/012/L00001-00089.pdf",
					HashDoc:          "ed461a9a5f1c7a861716c68dd8f9d3a095d6f7611a14f012570fe52f99fad6ba0017233d3182df0aefc5f8a2cb33f509a536124a26a93659862bef5968df7d23",
				}},
			},
			{
				Titulo:           "DEC-B-2019-521",
				Descripcion:      "Modifica la normativa xxxx",
				Estado:           2,
				FechaIniVigencia: epochMillis("2019-12-18"),
				RefDoc:           "second-compounderMSP/DEC-B-2019-521.pdf",
				HashDoc:          "mAeGpW6VLFNGamG1YZ8q3tTiqVCOyGz2M6MHpO7quPrc2MPCWWrEkTmYVP6bYaojrviE1FrPbLh8mmnfu8YAVLsuz7iVajOxA7jq3yp8VnyNzruACXT2Yw9nBq4qXPjC",
				Leyes: []Law{{
					Titulo:           "Reglamento 847/2011",
					Descripcion:      "Cambios en la concentración máxima permitida de [...]",
					FechaIniVigencia: epochMillis("2011-10-23"),
					RefDoc:           "https://eur-lex.europa.eu/legal-content/ES/TXT/PDF/?uri=CELEX:32011R0547&from=DE",
					HashDoc:          "e88e2d3d58b5d21e8ba4dc62cd1914101d4877832038a2207ec5e699097e87cd6eaa5481cb280f96412407c5ae408b17ef137bceda3a12c394d35a6acd1b63cc",
				}},
			},
			{
				Titulo:           "DEC-A-2020-060",
				Descripcion:      "Modifica la normativa 305",
				Estado:           3,
				FechaIniVigencia: epochMillis("2019-12-19"),
				FechaFinVigencia: epochMillisPtr("2019-12-21"),
				RefDoc:           "first-compounderMSP/DEC-A-2020-060.pdf",
				HashDoc:          "L2ez7TLpBc1685H8X88Mpiu0HGqXrDaBrNKlvBRZsReEURu7z8RgJVKM1AnNk7MNd1IhTUZbscImdeCkfdRuVPxXd4wocJGbmytaS6qrvpkrSh72KurklWinLh4zQMTw",
				Leyes: []Law{{
					Titulo:           "Reglamento CE 11/2012",
					Descripcion:      "...",
					FechaIniVigencia: epochMillis("2012-10-07"),
					RefDoc:           "https://www.boe.es/doue/2012/343/L00001-00029.pdf",
					HashDoc:          "f917b14434b2fd599ccbfc190dba4d10c923988a3e94fcc09cc166e004dd94f6bb3814299eb57d2d151232eaf1af01f57872ebb12d82617c0707ff05c7d104f4",
				}},
			},
			{
				Titulo:           "DEC-A-2020-365",
				Descripcion:      "x3x0x5x",
				Estado:           4,
				FechaIniVigencia: epochMillis("2019-12-21"),
				RefDoc:           "first-compounderMSP/DEC-A-2020-365.pdf",
				HashDoc:          "vuPMG7EYNCId7Yp6CstkVWUvas3ML5eBHIyKXnEhUOnhTLE7OcgHBBvbrZMP22nvN9p8g3w4D4sW28pk4FirNMxc00eUYW38FxjPJrbcUULi1w8KwJKP7mlIZVetrzev",
				Leyes: []Law{{
					Titulo:           "Real Decreto 874/2012",
					Descripcion:      "...",
					FechaIniVigencia: epochMillis("2012-10-23"),
					RefDoc:           "https://www.boe.es/doue/2012/258/L00001-00020.pdf",
					HashDoc:          "4656f40f3b2f70fb56213beb1d591ce35b1b390338fafdef776ce7a18a7f09f4e66d815b8c7f299595dbc4cc680882a8d22da07000bd5ad1c78887d45b810cbb",
				}},
			},
		},
		Productos: []Product{
			{Codigo: "6020600-A", Nombre: "Producto A", Descripcion: "Producto 6020600-A"},
			{Codigo: "6060200-B", Nombre: "Producto B", Descripcion: "Producto 6060200-B"},
		},
	}
}

const publicCert = "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAAEAQCxC8nd59ynxsXRaUdMlMRDH+r4PZqinq0sSAMJ5Vg608393bUTkTEFAlH+crHoJe+Ec6vRnflYSruw55QLcKxVH73sAQiCboyW//9Xtsn404Sb8Ow7Dw5G4JHjG6LUrCED/mccp1IxuWlcIqnEtIu+7ORv2IS3bkeL6a8u/Vp7d4+zd6D1/1NycY/iwqf/Ab0K75oJZ8B29dGm9OqUYKEF8IIhc+tT047LbrFh2SVK3+UUbzEzxqoOII/pNakDUUgyP7exgsE1Ae1WY1M9WZhpSHB6eLgFDeyfBokZzFKrieys4w+IpYx/0fdvj4fD1jHs6xCTUjeDUsLYpC5Mf/KB8DtNQHC4wFcOd/PKK02Hx1X496hunLQa5H4mfO5/PifhS1NB5i1bMg+4uojGF9mCk06UJs1GdhLHgrL2AAbV8gZ1peB/3r9l1OTWVZ4ZfXE2eI6VM2WFfPq4r19qRyJiyLh55IRlKOGM5RwCn/5S/3ScsPVRXD7TUMosMDI2PgsG9HdxiNforEp9UfZQwRim6LSmTZxWp2ab/mV/IwSzgTJctb8HAioaulE+xk4FJi8qW/TjsVbPEnAw3dPthuk3Znc7mg79tDDKRc/KgVF2CVfvwyafUR8MaRMqgv6YA5ok2gv0KdrAKgjkrExAP2bTBVBg1E8CSTcvRd92rIBKX4XJAX1SBnp7ntWlC2J79ZFzJgS8YMaXiZw278xXuP3Qr2/goAyMP8/UYhoKz0iC18gJxBcdvR2f1PGOzUbFalPaN8p+xmCW1uCXQgULO2aJqEH7wyQWtetpkjPoxDnL0kkD0xujx6lfyaQ8ydDNrqQvMFHiWDLbppUqiAj03c86l0C+3qUT3a7WStSEmlYueRQ7gQFED3M/9SY9/6AYnmsQjPk6hRMeJkUAO2RAYbM/M5JRnldVhgbTVI6gDJ7kJ0XJsnIurycuO86csPMZuUc2DDJ9HWxW0k9M5flxrzUDeUTr1uSh6XllqETyC75/8CK7kT4uB73RoGU3IhmZ7sIt3uehlI4jqI1NAelw4hThLY8buuU/M6tpJqKD+yc7MHCoeKWpS8xdkjWyByJgCyH7vM5/VjfKhjhiEwOFDGUqaVp3evEoXTpx586kv/O4XnyK6icwZHRWyK+NJXqapoqeILPuKWjuNFWVlxU7sI4+WbClCQ1Q1zSBed+8YLqHJyCXdBVUPELj/oX5crETPTxdnxjc8Ef2Te75qQOR50rfAE3RvTleUpPAg+gVN2vWiwZ8aLFsOfCOI/w0eVNyJuba60Xcqh2DDzNcaz6AZahH9j6OaIhNbXPxJGJJo8AZfmU9FhfV+Y84uxxQ+X8ftntgscbTMZGoGXClnbgD5omH"
