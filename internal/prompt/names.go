package prompt

// Template names shipped in templates/.
const (
	GoalCategory             = "goal_category"
	GoalExplanation          = "goal_explanation"
	WeightAnalysis           = "weight_analysis"
	BodyAnalysis             = "body_analysis"
	MealParsing              = "meal_parsing"
	MealParsingImage         = "meal_parsing_image"
	EntitySelection          = "entity_selection"
	FoodItemFabrication      = "food_item_fabrication"
	MacroOptimization        = "macro_optimization"
	FoodPlanGeneration       = "food_plan_generation"
	MacroTargets             = "macro_targets"
	AlternativeMeals         = "alternative_meals"
	GymSectionClassification = "gym_section_classification"
	GymNote                  = "gym_note"
	ExerciseAlternative      = "exercise_alternative"
	Warmup                   = "warmup"
	SuggestedWeight          = "suggested_weight"
)
