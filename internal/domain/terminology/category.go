package terminology

// Category names one of the fixed rule groups of the catalog.
type Category string

const (
	CategoryPersonNameDisease   Category = "person-name-disease"
	CategoryTestName            Category = "test-name"
	CategoryDrugNaming          Category = "drug-naming"
	CategoryMedicalTermSpelling Category = "medical-term-spelling"
	CategoryMandatoryHiragana   Category = "mandatory-hiragana"
	CategoryAgeNotation         Category = "age-notation"
	CategorySentenceStyle       Category = "sentence-style"
	CategoryHonorificRemoval    Category = "honorific-removal"
)

// categoryOrder is the sequence in which categories run. Later categories see
// the output of earlier ones, so reordering changes results.
var categoryOrder = [...]Category{
	CategoryPersonNameDisease,
	CategoryTestName,
	CategoryDrugNaming,
	CategoryMedicalTermSpelling,
	CategoryMandatoryHiragana,
	CategoryAgeNotation,
	CategorySentenceStyle,
	CategoryHonorificRemoval,
}

// categoryAliases maps the Japanese section names used by clinical rule
// documents onto the canonical category keys.
var categoryAliases = map[string]Category{
	"人名由来病名":   CategoryPersonNameDisease,
	"検査名変換":    CategoryTestName,
	"薬剤呼称":     CategoryDrugNaming,
	"医学用語表記":   CategoryMedicalTermSpelling,
	"ひらがな表記必須": CategoryMandatoryHiragana,
	"年齢表記":     CategoryAgeNotation,
	"文章表現":     CategorySentenceStyle,
	"敬語表現":     CategoryHonorificRemoval,
}

// CategoryOrder returns the fixed application order.
func CategoryOrder() []Category {
	out := categoryOrder
	return out[:]
}

// ParseCategory resolves a document key (canonical or Japanese alias).
func ParseCategory(key string) (Category, bool) {
	for _, c := range categoryOrder {
		if string(c) == key {
			return c, true
		}
	}
	c, ok := categoryAliases[key]
	return c, ok
}

// position returns the index of c in the application order, or -1.
func (c Category) position() int {
	for i, o := range categoryOrder {
		if o == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	return c.position() >= 0
}
