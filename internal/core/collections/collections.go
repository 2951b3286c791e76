// Package collections registers every EV2 collection with the core registry.
// Import it for its side effects.
package collections

import "github.com/JonMunkholm/ev2/internal/core"

func init() {
	registerCatalog()
	registerPricing()
	registerAccess()
}

// Navigation groups.
const (
	GroupCatalog = "Catalog"
	GroupPricing = "Pricing"
	GroupAccess  = "Access"
)

var (
	productKinds     = []string{"product", "service"}
	productStatuses  = []string{"active", "inactive", "discontinued"}
	priceListStatus  = []string{"draft", "active", "archived"}
	itemStatuses     = []string{"active", "inactive"}
	userStatuses     = []string{"active", "disabled"}
	permissionLevels = []string{"read", "write", "admin"}
)

func registerCatalog() {
	core.Register(core.CollectionDefinition{
		Info: core.CollectionInfo{
			Key:        "products",
			Group:      GroupCatalog,
			Label:      "Products & Services",
			NameColumn: "name",
			Filters:    []string{"kind", "status", "country"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "name", Label: "Name", Type: core.FieldText, Required: true, Normalizer: CollapseSpaces},
			{Name: "kind", Label: "Kind", Type: core.FieldEnum, Required: true, EnumValues: productKinds},
			{Name: "status", Label: "Status", Type: core.FieldEnum, Required: true, EnumValues: productStatuses},
			{Name: "country", Label: "Country", Type: core.FieldText, Normalizer: NormalizeCountry},
			{Name: "launchDate", Label: "Launch date", DBColumn: "launch_date", Type: core.FieldDate},
			{Name: "price", Label: "List price", Type: core.FieldPrice},
		},
	})

	core.Register(core.CollectionDefinition{
		Info: core.CollectionInfo{
			Key:      "currencies",
			Group:    GroupCatalog,
			Label:    "Currencies",
			IDColumn: "code",
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "code", Label: "Code", Type: core.FieldText, Required: true, Normalizer: NormalizeCurrency},
			{Name: "name", Label: "Name", Type: core.FieldText, Required: true, Normalizer: CollapseSpaces},
			{Name: "symbol", Label: "Symbol", Type: core.FieldText},
			{Name: "precision", Label: "Decimal places", Type: core.FieldNumeric, Required: true},
		},
	})
}

func registerPricing() {
	core.Register(core.CollectionDefinition{
		Info: core.CollectionInfo{
			Key:        "price_lists",
			Group:      GroupPricing,
			Label:      "Price Lists",
			NameColumn: "name",
			Filters:    []string{"status", "currency"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "name", Label: "Name", Type: core.FieldText, Required: true, Normalizer: CollapseSpaces},
			{Name: "currency", Label: "Currency", Type: core.FieldRef, Normalizer: NormalizeCurrency},
			{Name: "validFrom", Label: "Valid from", DBColumn: "valid_from", Type: core.FieldDate},
			{Name: "status", Label: "Status", Type: core.FieldEnum, Required: true, EnumValues: priceListStatus},
		},
	})

	core.Register(core.CollectionDefinition{
		Info: core.CollectionInfo{
			Key:      "price_list_items",
			Group:    GroupPricing,
			Label:    "Price List Items",
			IDColumn: "item_code",
			Filters:  []string{"priceListId", "productId", "status"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "itemCode", Label: "Item code", DBColumn: "item_code", Type: core.FieldText, Required: true},
			{Name: "priceListId", Label: "Price list", DBColumn: "price_list_id", Type: core.FieldRef, Required: true},
			{Name: "productId", Label: "Product", DBColumn: "product_id", Type: core.FieldRef, Required: true},
			{Name: "price", Label: "Price", Type: core.FieldPrice, Required: true},
			{Name: "status", Label: "Status", Type: core.FieldEnum, Required: true, EnumValues: itemStatuses},
		},
	})
}

func registerAccess() {
	core.Register(core.CollectionDefinition{
		Info: core.CollectionInfo{
			Key:             "groups",
			Group:           GroupAccess,
			Label:           "Groups",
			NameColumn:      "name",
			ProtectedColumn: "protected",
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "name", Label: "Name", Type: core.FieldText, Required: true, Normalizer: CollapseSpaces},
			{Name: "protected", Label: "Protected", Type: core.FieldBool, ReadOnly: true},
		},
	})

	core.Register(core.CollectionDefinition{
		Info: core.CollectionInfo{
			Key:             "users",
			Group:           GroupAccess,
			Label:           "Users",
			NameColumn:      "email",
			ProtectedColumn: "protected",
			Filters:         []string{"groupId", "status"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "email", Label: "Email", Type: core.FieldText, Required: true, Normalizer: NormalizeEmail},
			{Name: "name", Label: "Name", Type: core.FieldText, Required: true, Normalizer: CollapseSpaces},
			{Name: "groupId", Label: "Group", DBColumn: "group_id", Type: core.FieldRef},
			{Name: "status", Label: "Status", Type: core.FieldEnum, Required: true, EnumValues: userStatuses},
			{Name: "protected", Label: "Protected", Type: core.FieldBool, ReadOnly: true},
		},
	})

	core.Register(core.CollectionDefinition{
		Info: core.CollectionInfo{
			Key:     "access_rules",
			Group:   GroupAccess,
			Label:   "Access Rules",
			Filters: []string{"groupId", "permission"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "groupId", Label: "Group", DBColumn: "group_id", Type: core.FieldRef, Required: true},
			{Name: "resource", Label: "Resource", Type: core.FieldText, Required: true},
			{Name: "permission", Label: "Permission", Type: core.FieldEnum, Required: true, EnumValues: permissionLevels},
		},
	})
}
