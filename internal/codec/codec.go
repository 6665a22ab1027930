// Package codec encodes the timetable entities to the delimited flat strings
// kept in the blob store, and decodes them back. Decoding is total: damaged
// records are skipped and counted, never surfaced as errors, so one corrupt
// record cannot take down a whole load.
package codec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pamoka/timetable-api/internal/models"
)

// Wire delimiters. The odd shapes are inherited from the stored format and
// must not change, or existing blobs stop decoding.
const (
	fieldSep  = "___FIELD_SEP___"
	imageSep  = "___IMG_SEP___"
	weekSep   = "___NOTES_SEP___"
	recordSep = "|||"
	groupSep  = ";;;"
	weekIDSep = "::"
	slotSep   = "|"
)

// Note escaping. The note is the only free-text field inside the weekly
// encoding, and every wire delimiter above is built from '|', ';', ':' and
// '_', so the escape replaces those four characters (and the marker itself)
// with two-byte codes. The escaped form contains none of the delimiter
// alphabet, so no separator substring can survive escaping or be recombined
// from escape output and adjacent literal text.
const (
	noteEsc     = '~'
	noteEscSelf = "~~"
	noteEscPipe = "~p"
	noteEscSemi = "~s"
	noteEscCol  = "~c"
	noteEscUnd  = "~u"
)

// EscapeNote rewrites free text so the encoded record stays parseable. Safe
// for any input string; UnescapeNote reverses it exactly.
func EscapeNote(note string) string {
	var b strings.Builder
	b.Grow(len(note))
	for i := 0; i < len(note); i++ {
		switch note[i] {
		case noteEsc:
			b.WriteString(noteEscSelf)
		case '|':
			b.WriteString(noteEscPipe)
		case ';':
			b.WriteString(noteEscSemi)
		case ':':
			b.WriteString(noteEscCol)
		case '_':
			b.WriteString(noteEscUnd)
		default:
			b.WriteByte(note[i])
		}
	}
	return b.String()
}

// UnescapeNote reverses EscapeNote. A dangling or unknown escape pair is kept
// literally, so damaged input still decodes to something.
func UnescapeNote(note string) string {
	var b strings.Builder
	b.Grow(len(note))
	for i := 0; i < len(note); i++ {
		if note[i] != noteEsc || i+1 == len(note) {
			b.WriteByte(note[i])
			continue
		}
		i++
		switch note[i] {
		case noteEsc:
			b.WriteByte(noteEsc)
		case 'p':
			b.WriteByte('|')
		case 's':
			b.WriteByte(';')
		case 'c':
			b.WriteByte(':')
		case 'u':
			b.WriteByte('_')
		default:
			b.WriteByte(noteEsc)
			b.WriteByte(note[i])
		}
	}
	return b.String()
}

// EncodeSlots renders the numbered period slots, ordered by lesson number.
func EncodeSlots(slots []models.LessonTimeTemplate) string {
	ordered := make([]models.LessonTimeTemplate, len(slots))
	copy(ordered, slots)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].LessonNumber < ordered[j].LessonNumber })

	records := make([]string, 0, len(ordered))
	for _, slot := range ordered {
		records = append(records, strings.Join([]string{
			slot.ID,
			strconv.Itoa(slot.LessonNumber),
			strconv.FormatInt(slot.StartMillis, 10),
			strconv.FormatInt(slot.EndMillis, 10),
		}, slotSep))
	}
	return strings.Join(records, recordSep)
}

// DecodeSlots parses the slot blob, returning the surviving slots and the
// number of records skipped as malformed.
func DecodeSlots(data string) ([]models.LessonTimeTemplate, int) {
	if data == "" {
		return nil, 0
	}
	var slots []models.LessonTimeTemplate
	skipped := 0
	for _, record := range strings.Split(data, recordSep) {
		parts := strings.Split(record, slotSep)
		if len(parts) < 4 {
			skipped++
			continue
		}
		number, err := strconv.Atoi(parts[1])
		if err != nil {
			skipped++
			continue
		}
		start, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			skipped++
			continue
		}
		end, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			skipped++
			continue
		}
		slots = append(slots, models.LessonTimeTemplate{
			ID:           parts[0],
			LessonNumber: number,
			StartMillis:  start,
			EndMillis:    end,
		})
	}
	return slots, skipped
}

// EncodeTemplates renders the weekday buckets in weekday order.
func EncodeTemplates(byWeekday map[models.Weekday][]models.LessonTemplate) string {
	groups := make([]string, 0, models.WeekdayCount)
	for day := models.Monday; day < models.WeekdayCount; day++ {
		templates := byWeekday[day]
		if len(templates) == 0 {
			continue
		}
		records := make([]string, 0, len(templates))
		for _, tpl := range templates {
			records = append(records, strings.Join([]string{
				tpl.ID,
				tpl.Name,
				strconv.FormatInt(tpl.StartMillis, 10),
				strconv.FormatInt(tpl.EndMillis, 10),
				tpl.Color,
				strconv.FormatBool(tpl.IsFreeLesson),
			}, slotSep))
		}
		groups = append(groups, fmt.Sprintf("%d:%s", day, strings.Join(records, recordSep)))
	}
	return strings.Join(groups, groupSep)
}

// DecodeTemplates parses the template blob into weekday buckets.
func DecodeTemplates(data string) (map[models.Weekday][]models.LessonTemplate, int) {
	byWeekday := make(map[models.Weekday][]models.LessonTemplate)
	if data == "" {
		return byWeekday, 0
	}
	skipped := 0
	for _, group := range strings.Split(data, groupSep) {
		parts := strings.SplitN(group, ":", 2)
		if len(parts) != 2 {
			skipped++
			continue
		}
		dayNum, err := strconv.Atoi(parts[0])
		if err != nil || !models.Weekday(dayNum).Valid() {
			skipped++
			continue
		}
		day := models.Weekday(dayNum)
		for _, record := range strings.Split(parts[1], recordSep) {
			tpl, ok := decodeTemplateRecord(record)
			if !ok {
				if record != "" {
					skipped++
				}
				continue
			}
			byWeekday[day] = append(byWeekday[day], tpl)
		}
	}
	return byWeekday, skipped
}

func decodeTemplateRecord(record string) (models.LessonTemplate, bool) {
	parts := strings.Split(record, slotSep)
	if len(parts) < 6 {
		return models.LessonTemplate{}, false
	}
	start, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return models.LessonTemplate{}, false
	}
	end, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return models.LessonTemplate{}, false
	}
	isFree, err := strconv.ParseBool(parts[5])
	if err != nil {
		return models.LessonTemplate{}, false
	}
	return models.LessonTemplate{
		ID:           parts[0],
		Name:         parts[1],
		StartMillis:  start,
		EndMillis:    end,
		Color:        parts[4],
		IsFreeLesson: isFree,
	}, true
}

// EncodeWeeklyLesson renders one note instance.
func EncodeWeeklyLesson(lesson models.WeeklyLesson) string {
	return strings.Join([]string{
		lesson.ID,
		lesson.TemplateID,
		EscapeNote(lesson.Note),
		strings.Join(lesson.ImagePaths, imageSep),
		lesson.WeekIdentifier,
		strconv.FormatInt(lesson.ReminderMillis, 10),
	}, fieldSep)
}

// DecodeWeeklyLesson parses one note instance record.
func DecodeWeeklyLesson(record string) (models.WeeklyLesson, bool) {
	parts := strings.Split(record, fieldSep)
	if len(parts) < 6 {
		return models.WeeklyLesson{}, false
	}
	var images []string
	if parts[3] != "" {
		images = strings.Split(parts[3], imageSep)
	}
	reminder, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		reminder = 0
	}
	return models.WeeklyLesson{
		ID:             parts[0],
		TemplateID:     parts[1],
		Note:           UnescapeNote(parts[2]),
		ImagePaths:     images,
		WeekIdentifier: parts[4],
		ReminderMillis: reminder,
	}, true
}

// EncodeWeekly renders all weeks: week groups joined by the week separator,
// weekday groups inside a week, records inside a weekday.
func EncodeWeekly(byWeek map[string]map[models.Weekday][]models.WeeklyLesson) string {
	weekIDs := make([]string, 0, len(byWeek))
	for weekID := range byWeek {
		weekIDs = append(weekIDs, weekID)
	}
	sort.Strings(weekIDs)

	weeks := make([]string, 0, len(weekIDs))
	for _, weekID := range weekIDs {
		days := byWeek[weekID]
		groups := make([]string, 0, len(days))
		for day := models.Monday; day < models.WeekdayCount; day++ {
			lessons := days[day]
			if len(lessons) == 0 {
				continue
			}
			records := make([]string, 0, len(lessons))
			for _, lesson := range lessons {
				records = append(records, EncodeWeeklyLesson(lesson))
			}
			groups = append(groups, fmt.Sprintf("%d:%s", day, strings.Join(records, recordSep)))
		}
		if len(groups) == 0 {
			continue
		}
		weeks = append(weeks, weekID+weekIDSep+strings.Join(groups, groupSep))
	}
	return strings.Join(weeks, weekSep)
}

// DecodeWeekly parses the weekly-lessons blob.
func DecodeWeekly(data string) (map[string]map[models.Weekday][]models.WeeklyLesson, int) {
	byWeek := make(map[string]map[models.Weekday][]models.WeeklyLesson)
	if data == "" {
		return byWeek, 0
	}
	skipped := 0
	for _, weekEntry := range strings.Split(data, weekSep) {
		parts := strings.SplitN(weekEntry, weekIDSep, 2)
		if len(parts) != 2 || parts[0] == "" {
			skipped++
			continue
		}
		weekID := parts[0]
		for _, group := range strings.Split(parts[1], groupSep) {
			groupParts := strings.SplitN(group, ":", 2)
			if len(groupParts) != 2 {
				skipped++
				continue
			}
			dayNum, err := strconv.Atoi(groupParts[0])
			if err != nil || !models.Weekday(dayNum).Valid() {
				skipped++
				continue
			}
			day := models.Weekday(dayNum)
			for _, record := range strings.Split(groupParts[1], recordSep) {
				lesson, ok := DecodeWeeklyLesson(record)
				if !ok {
					if record != "" {
						skipped++
					}
					continue
				}
				if byWeek[weekID] == nil {
					byWeek[weekID] = make(map[models.Weekday][]models.WeeklyLesson)
				}
				byWeek[weekID][day] = append(byWeek[weekID][day], lesson)
			}
		}
	}
	return byWeek, skipped
}
