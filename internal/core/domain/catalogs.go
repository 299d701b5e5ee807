// Package domain file: internal/core/domain/catalogs.go
package domain

// 内置的字段目录与键映射表。目录名同时作为请求的 Base（规范字段空间）使用。

const (
	CatalogTaxi      = "taxi"
	CatalogTaxiRand  = "taxirand"
	CatalogInstagram = "instagram"
	CatalogMessage   = "message"
)

var TaxiCatalog = NewCatalog(CatalogTaxi,
	Field{"medallion", FieldText, "Taxi medallion"},
	Field{"hack_license", FieldText, "Hack license number"},
	Field{"vendor_id", FieldText, "Vendor ID"},
	Field{"store_and_fwd_flag", FieldText, "Store and forward flag"},
	Field{"payment_type", FieldText, "Payment type"},

	Field{"dropoff_datetime", FieldDate, "Dropoff date"},
	Field{"dropoff_latitude", FieldFloat, "Dropoff latitude"},
	Field{"dropoff_longitude", FieldFloat, "Dropoff longitude"},
	Field{"passenger_count", FieldInt, "Passenger count"},
	Field{"pickup_datetime", FieldDate, "Pickup date"},
	Field{"pickup_latitude", FieldFloat, "Pickup latitude"},
	Field{"pickup_longitude", FieldFloat, "Pickup longitude"},
	Field{"rate_code", FieldInt, "Rate code"},
	Field{"trip_distance", FieldFloat, "Trip distance (miles)"},
	Field{"trip_time_in_secs", FieldInt, "Trip time (seconds)"},

	Field{"fare_amount", FieldFloat, "Fare amount"},
	Field{"mta_tax", FieldFloat, "MTA tax"},
	Field{"surcharge", FieldFloat, "Surcharge"},
	Field{"tip_amount", FieldFloat, "Tip amount"},
	Field{"tolls_amount", FieldFloat, "Tolls"},
	Field{"total_amount", FieldFloat, "Total cost"},
)

// TaxiRandCatalog 在行程字段之外带有随机排序键与写入顺序。
var TaxiRandCatalog = TaxiCatalog.Extend(CatalogTaxiRand,
	Field{"ingest_source", FieldText, "Ingest Source"},
	Field{"service", FieldText, "Service"},
	Field{"region", FieldText, "Region"},
	Field{"rand1", FieldInt, "Random Index 1"},
	Field{"rand2", FieldInt, "Random Index 2"},
	Field{"_id", FieldBigInt, "Ingest Order"},
)

var InstagramCatalog = NewCatalog(CatalogInstagram,
	Field{"user_name", FieldText, "User name"},
	Field{"user_id_num", FieldInt, "User ID"},
	Field{"posted_date", FieldDate, "Posted date"},
	Field{"url", FieldText, "Message URL"},
	Field{"image_url", FieldText, "Image URL"},
	Field{"caption", FieldSearch, "Caption"},
	Field{"latitude", FieldFloat, "Latitude"},
	Field{"longitude", FieldFloat, "Longitude"},
	Field{"location_id", FieldText, "Location ID"},
	Field{"location_name", FieldText, "Location"},
	Field{"comment_count", FieldInt, "Comment count"},
	Field{"comments", FieldText, "Comments"},
	Field{"like_count", FieldInt, "Like count"},
	Field{"likes", FieldText, "Likes"},
	Field{"scraped_date", FieldDate, "Scraped date"},
)

var MessageCatalog = NewCatalog(CatalogMessage,
	Field{"msg_id", FieldCommaList, "Message ID"},
	Field{"user_id", FieldCommaList, "User ID"},
	Field{"user_name", FieldCommaList, "User name"},
	Field{"msg_date", FieldDate, "Message date"},
	Field{"msg_date_ms", FieldFloat, "Message date"},
	Field{"url", FieldText, "Message URL"},
	Field{"image_url", FieldText, "Image URL"},
	Field{"msg", FieldSearch, "Message"},
	Field{"latitude", FieldFloat, "Latitude"},
	Field{"longitude", FieldFloat, "Longitude"},
	Field{"location_id", FieldCommaList, "Location ID"},
	Field{"location_name", FieldText, "Location"},
	Field{"reply_to_msg_id", FieldCommaList, "In Reply To Message ID"},
	Field{"reply_to_user_id", FieldCommaList, "In Reply To User ID"},
	Field{"utc_offset", FieldInt, "User UTC Offset"},
	Field{"last_msg_id", FieldCommaList, "Last Message ID"},
	Field{"last_msg_date", FieldDate, "Last Message date"},
	Field{"last_latitude", FieldFloat, "Last Latitude"},
	Field{"last_longitude", FieldFloat, "Last Longitude"},
	Field{"ingest_date", FieldDate, "Ingest Date"},
	Field{"ingest_source", FieldCommaList, "Ingest Source"},
	Field{"service", FieldCommaList, "Service"},
	Field{"region", FieldCommaList, "Region"},
	Field{"rand1", FieldInt, "Random Index 1"},
	Field{"rand2", FieldInt, "Random Index 2"},
	Field{"_id", FieldBigInt, "Ingest Order"},
)

// MessageToInstagram 把消息字段名翻译为 instagram 表的列名。
var MessageToInstagram = KeyMap{
	"msg_id":           "",
	"user_id":          "",
	"msg_date":         "posted_date",
	"msg_date_ms":      "",
	"msg":              "caption",
	"reply_to_msg_id":  "",
	"reply_to_user_id": "",
	"utc_offset":       "",
	"rand1":            "",
	"rand2":            "",
	"last_msg_id":      "",
	"last_msg_date":    "",
	"last_latitude":    "",
	"last_longitude":   "",
	"ingest_date":      "scraped_date",
}

// MongoFullKeys 是行程集合的完整键名表（日期以 BSON datetime 存储）。
var MongoFullKeys = KeyMap{
	"medallion":          "med",
	"hack_license":       "hack",
	"vendor_id":          "vid",
	"rate_code":          "code",
	"store_and_fwd_flag": "fwd",
	"pickup_datetime":    "pdate",
	"dropoff_datetime":   "ddate",
	"passenger_count":    "count",
	"trip_time_in_secs":  "dur",
	"trip_distance":      "dist",
	"pickup_longitude":   "plon",
	"pickup_latitude":    "plat",
	"dropoff_longitude":  "dlon",
	"dropoff_latitude":   "dlat",
	"payment_type":       "type",
	"fare_amount":        "fare",
	"surcharge":          "sur",
	"mta_tax":            "tax",
	"tip_amount":         "tip",
	"tolls_amount":       "toll",
	"total_amount":       "total",
}

// MongoCompactKeys 是行程集合的紧凑键名表（日期以 epoch 毫秒存储）。
var MongoCompactKeys = KeyMap{
	"medallion":          "m",
	"hack_license":       "h",
	"vendor_id":          "v",
	"rate_code":          "c",
	"store_and_fwd_flag": "fw",
	"pickup_datetime":    "pd",
	"dropoff_datetime":   "dd",
	"passenger_count":    "p",
	"trip_time_in_secs":  "s",
	"trip_distance":      "d",
	"pickup_longitude":   "px",
	"pickup_latitude":    "py",
	"dropoff_longitude":  "dx",
	"dropoff_latitude":   "dy",
	"payment_type":       "ty",
	"fare_amount":        "f",
	"surcharge":          "sr",
	"mta_tax":            "tx",
	"tip_amount":         "tp",
	"tolls_amount":       "tl",
	"total_amount":       "t",
}

// ElasticFieldNames 把消息字段名翻译为搜索索引中的文档路径。
// rand1 与 rand2 都来自命中的 _score。
var ElasticFieldNames = KeyMap{
	"rand1":         "_score",
	"rand2":         "_score",
	"msg_date":      "created_time",
	"msg":           "caption.text",
	"url":           "link",
	"latitude":      "location.latitude",
	"longitude":     "location.longitude",
	"user_id":       "user.id",
	"user_name":     "user.username",
	"user_fullname": "user.full_name",
}

var builtinCatalogs = map[string]*Catalog{
	CatalogTaxi:      TaxiCatalog,
	CatalogTaxiRand:  TaxiRandCatalog,
	CatalogInstagram: InstagramCatalog,
	CatalogMessage:   MessageCatalog,
}

// LookupCatalog 按名称返回内置目录
func LookupCatalog(name string) (*Catalog, bool) {
	c, ok := builtinCatalogs[name]
	return c, ok
}

// KeyMapBetween 返回把 base 字段空间翻译到 backend 目录的映射。
// 两者相同或没有已知映射时返回 nil，表示按原名使用。
func KeyMapBetween(base, backend string) KeyMap {
	switch {
	case base == CatalogMessage && backend == CatalogInstagram:
		return MessageToInstagram
	case base == CatalogInstagram && backend == CatalogMessage:
		return MessageToInstagram.Reverse()
	}
	return nil
}
