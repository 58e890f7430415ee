package world

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/asksql/asksql/internal/schema"
)

type Country struct {
	Code           string  `parquet:"code" json:"code"`
	Name           string  `parquet:"name" json:"name"`
	Continent      string  `parquet:"continent" json:"continent"`
	Region         string  `parquet:"region" json:"region"`
	SurfaceArea    float64 `parquet:"surfacearea" json:"surfacearea"`
	Population     int64   `parquet:"population" json:"population"`
	LifeExpectancy float64 `parquet:"lifeexpectancy" json:"lifeexpectancy"`
	GNP            float64 `parquet:"gnp" json:"gnp"`
	Capital        int64   `parquet:"capital" json:"capital"`
}

type City struct {
	ID          int64  `parquet:"id" json:"id"`
	Name        string `parquet:"name" json:"name"`
	CountryCode string `parquet:"countrycode" json:"countrycode"`
	District    string `parquet:"district" json:"district"`
	Population  int64  `parquet:"population" json:"population"`
}

type CountryLanguage struct {
	CountryCode string  `parquet:"countrycode" json:"countrycode"`
	Language    string  `parquet:"language" json:"language"`
	IsOfficial  bool    `parquet:"isofficial" json:"isofficial"`
	Percentage  float64 `parquet:"percentage" json:"percentage"`
}

type Dataset struct {
	Countries []Country
	Cities    []City
	Languages []CountryLanguage
}

type seedCountry struct {
	country   Country
	cities    []City
	languages []CountryLanguage
}

// Reference rows; populations are rounded figures, good enough for demos.
var seedCountries = []seedCountry{
	{
		country:   Country{Code: "JPN", Name: "Japan", Continent: "Asia", Region: "Eastern Asia", SurfaceArea: 377829, Population: 125700000, LifeExpectancy: 84.5, GNP: 4230862},
		cities:    []City{{Name: "Tokyo", District: "Tokyo-to", Population: 37400068}, {Name: "Osaka", District: "Osaka", Population: 19281000}, {Name: "Nagoya", District: "Aichi", Population: 9507000}},
		languages: []CountryLanguage{{Language: "Japanese", IsOfficial: true, Percentage: 99.1}, {Language: "Korean", Percentage: 0.5}},
	},
	{
		country:   Country{Code: "IND", Name: "India", Continent: "Asia", Region: "Southern and Central Asia", SurfaceArea: 3287263, Population: 1428600000, LifeExpectancy: 70.8, GNP: 3385090},
		cities:    []City{{Name: "Delhi", District: "Delhi", Population: 28514000}, {Name: "Mumbai", District: "Maharashtra", Population: 19980000}, {Name: "Kolkata", District: "West Bengal", Population: 14681000}},
		languages: []CountryLanguage{{Language: "Hindi", IsOfficial: true, Percentage: 43.6}, {Language: "English", IsOfficial: true, Percentage: 10.6}, {Language: "Bengali", Percentage: 8.0}},
	},
	{
		country:   Country{Code: "CHN", Name: "China", Continent: "Asia", Region: "Eastern Asia", SurfaceArea: 9572900, Population: 1425700000, LifeExpectancy: 78.2, GNP: 17963171},
		cities:    []City{{Name: "Shanghai", District: "Shanghai", Population: 25582000}, {Name: "Beijing", District: "Peking", Population: 19618000}, {Name: "Chongqing", District: "Chongqing", Population: 14838000}},
		languages: []CountryLanguage{{Language: "Chinese", IsOfficial: true, Percentage: 92.0}, {Language: "Zhuang", Percentage: 1.4}},
	},
	{
		country:   Country{Code: "BRA", Name: "Brazil", Continent: "South America", Region: "South America", SurfaceArea: 8515767, Population: 216400000, LifeExpectancy: 75.9, GNP: 1920096},
		cities:    []City{{Name: "Sao Paulo", District: "Sao Paulo", Population: 21650000}, {Name: "Rio de Janeiro", District: "Rio de Janeiro", Population: 13293000}},
		languages: []CountryLanguage{{Language: "Portuguese", IsOfficial: true, Percentage: 97.5}, {Language: "German", Percentage: 0.5}},
	},
	{
		country:   Country{Code: "MEX", Name: "Mexico", Continent: "North America", Region: "Central America", SurfaceArea: 1964375, Population: 128500000, LifeExpectancy: 75.0, GNP: 1414187},
		cities:    []City{{Name: "Ciudad de Mexico", District: "Distrito Federal", Population: 21581000}, {Name: "Guadalajara", District: "Jalisco", Population: 5179000}},
		languages: []CountryLanguage{{Language: "Spanish", IsOfficial: true, Percentage: 92.1}, {Language: "Nahuatl", Percentage: 1.8}},
	},
	{
		country:   Country{Code: "USA", Name: "United States", Continent: "North America", Region: "North America", SurfaceArea: 9833517, Population: 339900000, LifeExpectancy: 77.5, GNP: 25462700},
		cities:    []City{{Name: "New York", District: "New York", Population: 18819000}, {Name: "Los Angeles", District: "California", Population: 12458000}, {Name: "Chicago", District: "Illinois", Population: 8864000}},
		languages: []CountryLanguage{{Language: "English", IsOfficial: true, Percentage: 78.2}, {Language: "Spanish", Percentage: 13.4}},
	},
	{
		country:   Country{Code: "CAN", Name: "Canada", Continent: "North America", Region: "North America", SurfaceArea: 9984670, Population: 38780000, LifeExpectancy: 82.6, GNP: 2139840},
		cities:    []City{{Name: "Toronto", District: "Ontario", Population: 6255000}, {Name: "Montreal", District: "Quebec", Population: 4276000}},
		languages: []CountryLanguage{{Language: "English", IsOfficial: true, Percentage: 56.0}, {Language: "French", IsOfficial: true, Percentage: 21.0}},
	},
	{
		country:   Country{Code: "DEU", Name: "Germany", Continent: "Europe", Region: "Western Europe", SurfaceArea: 357588, Population: 83300000, LifeExpectancy: 80.6, GNP: 4072192},
		cities:    []City{{Name: "Berlin", District: "Berliini", Population: 3645000}, {Name: "Hamburg", District: "Hamburg", Population: 1841000}},
		languages: []CountryLanguage{{Language: "German", IsOfficial: true, Percentage: 91.3}, {Language: "Turkish", Percentage: 2.6}},
	},
	{
		country:   Country{Code: "CHE", Name: "Switzerland", Continent: "Europe", Region: "Western Europe", SurfaceArea: 41285, Population: 8800000, LifeExpectancy: 83.4, GNP: 807706},
		cities:    []City{{Name: "Zurich", District: "Zurich", Population: 1434000}, {Name: "Geneve", District: "Geneve", Population: 203000}},
		languages: []CountryLanguage{{Language: "German", IsOfficial: true, Percentage: 63.6}, {Language: "French", IsOfficial: true, Percentage: 19.2}, {Language: "Italian", IsOfficial: true, Percentage: 7.7}},
	},
	{
		country:   Country{Code: "NGA", Name: "Nigeria", Continent: "Africa", Region: "Western Africa", SurfaceArea: 923768, Population: 223800000, LifeExpectancy: 53.9, GNP: 477386},
		cities:    []City{{Name: "Lagos", District: "Lagos", Population: 14862000}, {Name: "Kano", District: "Kano", Population: 4103000}},
		languages: []CountryLanguage{{Language: "English", IsOfficial: true, Percentage: 10.0}, {Language: "Hausa", Percentage: 21.1}, {Language: "Yoruba", Percentage: 21.4}},
	},
	{
		country:   Country{Code: "EGY", Name: "Egypt", Continent: "Africa", Region: "Northern Africa", SurfaceArea: 1002000, Population: 112700000, LifeExpectancy: 70.2, GNP: 476748},
		cities:    []City{{Name: "Cairo", District: "Kairo", Population: 20901000}, {Name: "Alexandria", District: "Aleksandria", Population: 5381000}},
		languages: []CountryLanguage{{Language: "Arabic", IsOfficial: true, Percentage: 98.8}},
	},
	{
		country:   Country{Code: "AUS", Name: "Australia", Continent: "Oceania", Region: "Australia and New Zealand", SurfaceArea: 7692024, Population: 26400000, LifeExpectancy: 83.3, GNP: 1675419},
		cities:    []City{{Name: "Sydney", District: "New South Wales", Population: 5312000}, {Name: "Melbourne", District: "Victoria", Population: 5078000}},
		languages: []CountryLanguage{{Language: "English", IsOfficial: true, Percentage: 81.2}, {Language: "Italian", Percentage: 2.2}},
	},
}

// Generate builds the dataset. The same seed and extraCities always yield the
// same rows; extra cities are synthetic towns spread across the countries.
func Generate(seed int64, extraCities int) Dataset {
	rnd := rand.New(rand.NewSource(seed))
	out := Dataset{}
	nextID := int64(1)

	for _, item := range seedCountries {
		country := item.country
		for i, city := range item.cities {
			city.ID = nextID
			city.CountryCode = country.Code
			nextID++
			if i == 0 {
				country.Capital = city.ID
			}
			out.Cities = append(out.Cities, city)
		}
		for _, language := range item.languages {
			language.CountryCode = country.Code
			out.Languages = append(out.Languages, language)
		}
		out.Countries = append(out.Countries, country)
	}

	for i := 0; i < extraCities; i++ {
		country := seedCountries[rnd.Intn(len(seedCountries))].country
		out.Cities = append(out.Cities, City{
			ID:          nextID,
			Name:        fmt.Sprintf("%s Town %03d", country.Name, i+1),
			CountryCode: country.Code,
			District:    pickOne(rnd, []string{"North", "South", "East", "West", "Central"}),
			Population:  int64(math.Round(float64(20000+rnd.Intn(480000))/100) * 100),
		})
		nextID++
	}

	sort.Slice(out.Countries, func(i, j int) bool { return out.Countries[i].Code < out.Countries[j].Code })
	return out
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

// Schema describes the three tables in declared column order.
func Schema() schema.Description {
	notNull := schema.BoolPtr(false)
	nullable := schema.BoolPtr(true)
	return schema.Description{Tables: []schema.Table{
		{
			Name: "city",
			Columns: []schema.Column{
				{Name: "id", DataType: "integer", Nullable: notNull, PrimaryKey: true},
				{Name: "name", DataType: "text", Nullable: notNull},
				{Name: "countrycode", DataType: "character", Format: "bpchar(3)", Nullable: notNull},
				{Name: "district", DataType: "text", Nullable: notNull},
				{Name: "population", DataType: "integer", Nullable: notNull},
			},
		},
		{
			Name: "country",
			Columns: []schema.Column{
				{Name: "code", DataType: "character", Format: "bpchar(3)", Nullable: notNull, PrimaryKey: true},
				{Name: "name", DataType: "text", Nullable: notNull},
				{Name: "continent", DataType: "text", Nullable: notNull},
				{Name: "region", DataType: "text", Nullable: notNull},
				{Name: "surfacearea", DataType: "real", Nullable: notNull},
				{Name: "population", DataType: "integer", Nullable: notNull},
				{Name: "lifeexpectancy", DataType: "real", Nullable: nullable},
				{Name: "gnp", DataType: "numeric", Nullable: nullable},
				{Name: "capital", DataType: "integer", Nullable: nullable},
			},
		},
		{
			Name: "countrylanguage",
			Columns: []schema.Column{
				{Name: "countrycode", DataType: "character", Format: "bpchar(3)", Nullable: notNull, PrimaryKey: true},
				{Name: "language", DataType: "text", Nullable: notNull, PrimaryKey: true},
				{Name: "isofficial", DataType: "boolean", Nullable: notNull},
				{Name: "percentage", DataType: "real", Nullable: notNull},
			},
		},
	}}
}
