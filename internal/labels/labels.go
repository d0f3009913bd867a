// Package labels is the catalog of thoracic abnormalities the classifier
// reports, in model output order.
package labels

import "strings"

// Count is the number of abnormality classes. Model output units at or
// beyond Count (the "no finding" unit) are never reported.
const Count = 14

// NoFindingIndex is the optional 15th output unit.
const NoFindingIndex = 14

const (
	NoneDetected = "No Abnormalities Detected"
	AllClear     = "All Clear - No Abnormalities Detected"
)

// Label is one abnormality class.
type Label struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
	Name  string `json:"name"`
}

var catalog = [Count]Label{
	{0, "aortic_enlargement", "Aortic Enlargement"},
	{1, "atelectasis", "Atelectasis"},
	{2, "calcification", "Calcification"},
	{3, "cardiomegaly", "Cardiomegaly"},
	{4, "consolidation", "Consolidation"},
	{5, "ild", "Interstitial Lung Disease (ILD)"},
	{6, "infiltration", "Infiltration"},
	{7, "lung_opacity", "Lung Opacity"},
	{8, "nodule_mass", "Nodule/Mass"},
	{9, "other_lesion", "Other Lesion"},
	{10, "pleural_effusion", "Pleural Effusion"},
	{11, "pleural_thickening", "Pleural Thickening"},
	{12, "pneumothorax", "Pneumothorax"},
	{13, "pulmonary_fibrosis", "Pulmonary Fibrosis"},
}

// All returns a copy of the catalog.
func All() []Label {
	out := make([]Label, Count)
	copy(out, catalog[:])
	return out
}

// ByIndex returns the label for a model output index.
func ByIndex(i int) (Label, bool) {
	if i < 0 || i >= Count {
		return Label{}, false
	}
	return catalog[i], true
}

// ByKey looks a label up by its key, ignoring case.
func ByKey(key string) (Label, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, l := range catalog {
		if l.Key == key {
			return l, true
		}
	}
	return Label{}, false
}

// Line is the per-finding result text.
func Line(l Label) string {
	return "Abnormality Detected: " + l.Name
}

// Summary renders a one-line verdict for a set of positive labels.
func Summary(found []Label) string {
	switch len(found) {
	case 0:
		return AllClear
	case 1:
		return Line(found[0])
	}
	names := make([]string, len(found))
	for i, l := range found {
		names[i] = l.Name
	}
	return "Abnormalities Detected: " + strings.Join(names, ", ")
}
