package nutrition

// Totals is one set of daily nutrition figures. Water is counted in glasses,
// macros in grams.
type Totals struct {
	Calories float64 `json:"calories" firestore:"calories"`
	Protein  float64 `json:"protein" firestore:"protein"`
	Carbs    float64 `json:"carbs" firestore:"carbs"`
	Fats     float64 `json:"fats" firestore:"fats"`
	Water    float64 `json:"water" firestore:"water"`
}

// Delta is a partial Totals; nil fields count as zero.
type Delta struct {
	Calories *float64 `json:"calories,omitempty"`
	Protein  *float64 `json:"protein,omitempty"`
	Carbs    *float64 `json:"carbs,omitempty"`
	Fats     *float64 `json:"fats,omitempty"`
	Water    *float64 `json:"water,omitempty"`
}

type Field string

const (
	FieldCalories Field = "calories"
	FieldProtein  Field = "protein"
	FieldCarbs    Field = "carbs"
	FieldFats     Field = "fats"
	FieldWater    Field = "water"
)

var Fields = []Field{FieldCalories, FieldProtein, FieldCarbs, FieldFats, FieldWater}

func (f Field) Valid() bool {
	switch f {
	case FieldCalories, FieldProtein, FieldCarbs, FieldFats, FieldWater:
		return true
	}
	return false
}

type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// Lifestyle is the self-reported physical activity level used for TDEE.
type Lifestyle string

const (
	LifestyleSedentary  Lifestyle = "sedentary"
	LifestyleLight      Lifestyle = "light"
	LifestyleModerate   Lifestyle = "moderate"
	LifestyleActive     Lifestyle = "active"
	LifestyleVeryActive Lifestyle = "veryActive"
)

// DefaultTarget is assigned to new accounts before setup is completed.
var DefaultTarget = Totals{Calories: 2200, Protein: 80, Carbs: 275, Fats: 73, Water: 8}

func (t Totals) Get(f Field) float64 {
	switch f {
	case FieldCalories:
		return t.Calories
	case FieldProtein:
		return t.Protein
	case FieldCarbs:
		return t.Carbs
	case FieldFats:
		return t.Fats
	case FieldWater:
		return t.Water
	}
	return 0
}

func (t *Totals) Set(f Field, v float64) {
	switch f {
	case FieldCalories:
		t.Calories = v
	case FieldProtein:
		t.Protein = v
	case FieldCarbs:
		t.Carbs = v
	case FieldFats:
		t.Fats = v
	case FieldWater:
		t.Water = v
	}
}

// Add returns t with every present field of d added.
func (t Totals) Add(d Delta) Totals {
	for f, v := range d.Values() {
		t.Set(f, t.Get(f)+v)
	}
	return t
}

// Values returns only the fields present in d.
func (d Delta) Values() map[Field]float64 {
	out := make(map[Field]float64, 5)
	if d.Calories != nil {
		out[FieldCalories] = *d.Calories
	}
	if d.Protein != nil {
		out[FieldProtein] = *d.Protein
	}
	if d.Carbs != nil {
		out[FieldCarbs] = *d.Carbs
	}
	if d.Fats != nil {
		out[FieldFats] = *d.Fats
	}
	if d.Water != nil {
		out[FieldWater] = *d.Water
	}
	return out
}

func (d Delta) IsEmpty() bool {
	return len(d.Values()) == 0
}

// Merge overlays the present fields of d onto t.
func (t Totals) Merge(d Delta) Totals {
	for f, v := range d.Values() {
		t.Set(f, v)
	}
	return t
}

// DeltaOf converts full totals into a delta carrying every field.
func DeltaOf(t Totals) Delta {
	return Delta{
		Calories: &t.Calories,
		Protein:  &t.Protein,
		Carbs:    &t.Carbs,
		Fats:     &t.Fats,
		Water:    &t.Water,
	}
}
